// Package server exposes the controller's state over a small HTTP
// surface: health, status snapshot and prometheus metrics. It is
// read-only; recovery never runs on behalf of an HTTP request.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/tetherctl/internal/observability"
	"github.com/danmuck/tetherctl/internal/tether"
)

const version = "0.1.0"

// StatusSource provides point-in-time controller snapshots.
type StatusSource interface {
	Status() tether.Status
}

func NewRouter(src StatusSource, logger zerolog.Logger) *gin.Engine {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "tetherctl",
			"version": version,
		})
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Status())
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Serve blocks until ctx is done, then shuts the listener down.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
