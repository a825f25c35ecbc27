package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-client/internal/api"
	"github.com/BuzzLyutic/todo-client/internal/config"
	"github.com/BuzzLyutic/todo-client/internal/controller"
	"github.com/BuzzLyutic/todo-client/internal/tui"
	"github.com/BuzzLyutic/todo-client/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "todo:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	logger, err := newLogger(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := worker.NewPool(logger, cfg.RefetchWorkers)
	pool.Start(ctx)
	defer pool.Stop()

	cache := api.NewCache(pool, cfg.CacheKeepUnused, logger)
	go cache.Run(ctx)

	client, err := api.NewClient(cfg.APIURL, &http.Client{Timeout: cfg.HTTPTimeout}, cache, logger)
	if err != nil {
		return err
	}
	logger.Info("todo client started", zap.String("api", cfg.APIURL))

	bridge := tui.NewBridge()
	ctrl := controller.New(controller.FromClient(client), bridge, bridge, logger)
	if err := ctrl.Start(); err != nil {
		return err
	}
	defer ctrl.Close()

	return tui.Run(ctrl, bridge)
}

// newLogger writes to path when set. The terminal belongs to the UI, so
// without a path nothing is logged.
func newLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
