package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/talkincode/toughdns/config"
	"github.com/talkincode/toughdns/internal/domain"
	"github.com/talkincode/toughdns/pkg/common"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	logLevel := gormlogger.Silent
	if cfg.Debug {
		logLevel = gormlogger.Info
	}
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(logLevel)}

	var db *gorm.DB
	var err error
	switch cfg.Type {
	case "sqlite":
		datadir := filepath.Join(workdir, "data")
		if err := common.MakeDir(datadir); err != nil {
			zap.S().Panicf("failed to create data dir %s: %v", datadir, err)
		}
		db, err = gorm.Open(sqlite.Open(filepath.Join(datadir, cfg.Name+".db")), gormCfg)
	default:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	}
	if err != nil {
		zap.S().Panicf("failed to connect %s database: %v", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(cfg.MaxConn)
		sqlDB.SetMaxIdleConns(cfg.IdleConn)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db
}

// checkSettings seeds the runtime-tunable settings the schedulers read.
func (a *Application) checkSettings() {
	defaults := []domain.SysConfig{
		{ID: common.UUIDint64(), Sort: 1, Type: "scheduler", Name: "round_cron", Value: "@every 1h",
			Remark: "Evaluation round cadence"},
		{ID: common.UUIDint64(), Sort: 2, Type: "scheduler", Name: "max_workers", Value: "50",
			Remark: "Probe worker pool ceiling"},
		{ID: common.UUIDint64(), Sort: 3, Type: "scheduler", Name: "round_enabled", Value: "true",
			Remark: "Run scheduled evaluation rounds"},
	}

	for _, item := range defaults {
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", item.Type, item.Name).
			Count(&count)
		if count == 0 {
			if err := a.gormDB.Create(&item).Error; err != nil {
				zap.L().Error("failed to seed setting",
					zap.String("key", item.Type+"."+item.Name), zap.Error(err))
			} else {
				zap.L().Info("initialized config",
					zap.String("key", item.Type+"."+item.Name),
					zap.String("default", item.Value))
			}
		}
	}
}
