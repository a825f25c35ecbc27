package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-client/internal/config"
	"github.com/BuzzLyutic/todo-client/internal/handler"
	"github.com/BuzzLyutic/todo-client/internal/repo"
	"github.com/BuzzLyutic/todo-client/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	var todoRepo repo.TodoRepository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(context.Background()); err != nil {
			logger.Fatal("Failed to ping database", zap.Error(err))
		}
		logger.Info("Connected to database")
		todoRepo = repo.NewTodoRepo(pool)
	} else {
		logger.Info("DATABASE_URL not set, using in-memory store")
		todoRepo = repo.NewMemoryRepo()
	}

	todoService := service.NewTodoService(todoRepo, cfg.PerPage)
	todoHandler := handler.NewTodoHandler(todoService, logger)

	srv := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(todoHandler, middleware.Logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Shutdown error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
