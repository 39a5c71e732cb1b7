package app

import (
	"sync"
	"time"

	"github.com/spf13/cast"
	"github.com/talkincode/toughdns/internal/domain"
	"go.uber.org/zap"
)

const settingsCacheTTL = time.Minute

type cachedSetting struct {
	value   string
	fetched time.Time
}

// ConfigManager reads runtime-tunable settings from the sys_config table
// with a short read-through cache.
type ConfigManager struct {
	app   *Application
	mu    sync.Mutex
	cache map[string]cachedSetting
}

func NewConfigManager(app *Application) *ConfigManager {
	return &ConfigManager{app: app, cache: make(map[string]cachedSetting)}
}

func (m *ConfigManager) GetString(category, name string) string {
	key := category + "." + name
	m.mu.Lock()
	if c, ok := m.cache[key]; ok && time.Since(c.fetched) < settingsCacheTTL {
		m.mu.Unlock()
		return c.value
	}
	m.mu.Unlock()

	var item domain.SysConfig
	err := m.app.gormDB.Where("type = ? and name = ?", category, name).First(&item).Error
	if err != nil {
		zap.L().Debug("setting not found", zap.String("key", key))
		return ""
	}

	m.mu.Lock()
	m.cache[key] = cachedSetting{value: item.Value, fetched: time.Now()}
	m.mu.Unlock()
	return item.Value
}

func (m *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.GetString(category, name))
}

func (m *ConfigManager) GetInt(category, name string) int {
	return cast.ToInt(m.GetString(category, name))
}

func (m *ConfigManager) GetBool(category, name string) bool {
	return cast.ToBool(m.GetString(category, name))
}
