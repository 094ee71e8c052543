// Command ragcore-server is the HTTP entrypoint: it assembles the dig
// container (config, infrastructure clients, the 9-stage ragpipeline) and
// serves the answering API until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/dig"

	"github.com/noteqa/ragcore/internal/bgqueue"
	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/container"
	"github.com/noteqa/ragcore/internal/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	c := container.BuildContainer(dig.New())

	var srv *http.Server
	err := c.Invoke(func(cfg *config.Config, engine *gin.Engine) {
		logger.SetLevel(cfg.LogLevel)
		srv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: engine,
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragcore-server: container init: %v\n", err)
		os.Exit(1)
	}

	go func() {
		logger.Infof(context.Background(), "ragcore-server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf(context.Background(), "ragcore-server: %v", err)
			os.Exit(1)
		}
	}()

	go scheduleCacheWarmups(c)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf(ctx, "ragcore-server: graceful shutdown failed: %v", err)
	}

	_ = c.Invoke(func(shutdownTracer func(context.Context) error) {
		_ = shutdownTracer(ctx)
	})
}

// scheduleCacheWarmups periodically asks a background worker to
// pre-populate the embedding cache, keeping that work off the request path.
func scheduleCacheWarmups(c *dig.Container) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		err := c.Invoke(func(q bgqueue.BackgroundQueue) error {
			return q.Enqueue(context.Background(), bgqueue.TaskWarmEmbeddingCache, nil)
		})
		if err != nil {
			logger.Warnf(context.Background(), "cache warmup enqueue failed: %v", err)
		}
	}
}
