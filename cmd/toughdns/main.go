package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talkincode/toughdns/config"
	"github.com/talkincode/toughdns/internal/adminapi"
	"github.com/talkincode/toughdns/internal/app"
	"github.com/talkincode/toughdns/internal/webserver"
	"go.uber.org/zap"
)

var (
	conffile = flag.String("c", "/etc/toughdns.yml", "config file")
	initdb   = flag.Bool("initdb", false, "drop and recreate database tables, then exit")
	once     = flag.Bool("once", false, "run a single evaluation round and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toughdns: %v\n", err)
		os.Exit(1)
	}

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		report, err := application.RunRoundNow(ctx)
		if err != nil {
			zap.L().Error("round failed", zap.Error(err))
			application.Release()
			os.Exit(1)
		}
		for _, lo := range report.Lines {
			zap.L().Info("line result",
				zap.String("line", string(lo.Line)),
				zap.Strings("desired", lo.Desired),
				zap.Int("added", lo.Added),
				zap.Int("removed", lo.Removed),
				zap.Int("unchanged", lo.Unchanged),
				zap.String("skipped", lo.Skipped))
		}
		return
	}

	ws := webserver.Init(application)
	adminapi.Register()
	go func() {
		if err := ws.Start(); err != nil {
			zap.L().Error("admin api stopped", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zap.L().Info("shutting down")
}
