package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"github.com/talkincode/toughdns/internal/domain"
	"github.com/talkincode/toughdns/pkg/metrics"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.SchedSystemMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	// Round results older than the history window convey nothing the
	// rolling store does not already hold.
	_, err = a.sched.AddFunc("@daily", func() {
		days := a.appConfig.History.MaxHistoryDays
		a.gormDB.
			Where("round_ts < ?", time.Now().
				AddDate(0, 0, -days)).Delete(&domain.DnsRoundResult{})
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	roundCron := a.GetSettingsStringValue("scheduler", "round_cron")
	if roundCron == "" {
		roundCron = "@every 1h"
	}
	_, err = a.sched.AddFunc(roundCron, func() {
		a.SchedEvaluationRoundTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedEvaluationRoundTask runs one evaluation round on the cron cadence.
func (a *Application) SchedEvaluationRoundTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	if !a.GetSettingsBoolValue("scheduler", "round_enabled") {
		zap.L().Debug("scheduled rounds disabled")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if _, err := a.RunRoundNow(ctx); err != nil {
		zap.L().Error("scheduled round failed", zap.Error(err))
	}
}

// SchedSystemMonitorTask system monitor
func (a *Application) SchedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	_cpuuse, err := cpu.Percent(0, false)
	if err == nil && len(_cpuuse) > 0 {
		metrics.SetGauge("system_cpuuse", int64(_cpuuse[0]*100)) // Store as percentage * 100
	}

	_meminfo, err := mem.VirtualMemory()
	if err == nil {
		metrics.SetGauge("system_memuse", int64(_meminfo.Used/1024/1024))
	}
}
