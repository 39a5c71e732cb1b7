package app

import (
	"os"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/talkincode/toughdns/config"
	"github.com/talkincode/toughdns/internal/dnssync"
	"github.com/talkincode/toughdns/internal/domain"
	"github.com/talkincode/toughdns/internal/history"
	"github.com/talkincode/toughdns/internal/probe"
	"github.com/talkincode/toughdns/pkg/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig     *config.AppConfig
	gormDB        *gorm.DB
	sched         *cron.Cron
	configManager *ConfigManager
	recorder      *history.Recorder
	provider      dnssync.Provider
	source        probe.Source

	roundMu    sync.Mutex
	lastReport *RoundReport
	reportMu   sync.RWMutex
}

// Ensure Application implements all interfaces
var (
	_ DBProvider        = (*Application)(nil)
	_ ConfigProvider    = (*Application)(nil)
	_ SettingsProvider  = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
	a.recorder = history.NewRecorder(db, a.appConfig.History)
	a.configManager = NewConfigManager(a)
}

// OverrideProvider replaces the DNS provider client (used in tests).
func (a *Application) OverrideProvider(p dnssync.Provider) {
	a.provider = p
}

// OverrideSource replaces the measurement source (used in tests).
func (a *Application) OverrideSource(s probe.Source) {
	a.source = s
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	// Initialize zap logger
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.Logger.FileEnable {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, cfg.Logger.Filename)
	}

	// Build logger with file rotation if enabled
	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)

	// Initialize metrics with workdir convention
	err = metrics.InitMetrics(cfg.System.Workdir)
	if err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	// Initialize database connection
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	a.checkSettings()

	a.configManager = NewConfigManager(a)
	a.recorder = history.NewRecorder(a.gormDB, cfg.History)

	provider, err := dnssync.NewProvider(cfg.DNS)
	if err != nil {
		zap.S().Panicf("dns provider init failed: %v", err)
	}
	a.provider = provider

	a.initJob()
}

// buildSource wires the local measurement vantage: ICMP pings plus direct
// HTTP timing probes, attributed to every configured line. Rounds build it
// fresh so settings-driven worker caps apply; carrier-side measurement
// networks replace it through OverrideSource.
func (a *Application) buildSource(pc config.ProbeConfig) probe.Source {
	return probe.MultiSource{
		probe.NewPingSource(pc, engineLines()),
		probe.NewHTTPSource(pc, "DIRECT", engineLines()),
	}
}

func (a *Application) MigrateDB(track bool) (err error) {
	if track {
		return a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...)
	}
	return a.gormDB.Migrator().AutoMigrate(domain.Tables...)
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// ConfigMgr returns the configuration manager
func (a *Application) ConfigMgr() *ConfigManager {
	return a.configManager
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// GetSettingsStringValue retrieves a string configuration value
func (a *Application) GetSettingsStringValue(category, key string) string {
	return a.configManager.GetString(category, key)
}

// GetSettingsInt64Value retrieves an int64 configuration value
func (a *Application) GetSettingsInt64Value(category, key string) int64 {
	return a.configManager.GetInt64(category, key)
}

// GetSettingsBoolValue retrieves a boolean configuration value
func (a *Application) GetSettingsBoolValue(category, key string) bool {
	return a.configManager.GetBool(category, key)
}

// LastRound returns the most recent round report, or nil before the first
// round completes.
func (a *Application) LastRound() *RoundReport {
	a.reportMu.RLock()
	defer a.reportMu.RUnlock()
	return a.lastReport
}

func (a *Application) setLastRound(r *RoundReport) {
	a.reportMu.Lock()
	a.lastReport = r
	a.reportMu.Unlock()
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	_ = metrics.Close()
	_ = zap.L().Sync()
}
