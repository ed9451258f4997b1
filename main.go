package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"followpro/api/app"
	"followpro/api/config"
	"followpro/api/internal"
	"followpro/api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	gin.SetMode(gin.ReleaseMode)

	c, err := config.Setup()
	if err != nil {
		return err
	}

	if err := app.MakeLogger(c.App.LogLevel); err != nil {
		return fmt.Errorf("failed to create logger, %w", err)
	}
	defer zap.L().Sync()

	d, err := internal.NewDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	if *config.CreateAdmin {
		ctx, cancel := context.WithTimeout(context.Background(), c.Timeouts.Store)
		defer cancel()

		created, err := service.SeedAdmin(ctx, d.Store, d.Hasher, c.Admin)
		if err != nil {
			return err
		}

		if created {
			zap.L().Info("Admin account created", zap.String("email", c.Admin.Email))
		} else {
			zap.L().Info("Admin account already exists", zap.String("email", c.Admin.Email))
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cr, err := service.ScheduleCleanup(d.Cleaner, c.Cleanup)
	if err != nil {
		return err
	}
	cr.Start()
	defer cr.Stop()

	go d.Throttle.Cleanup(ctx)

	router, err := app.NewRouter(d)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Host.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("Server starting", zap.Int("port", c.Host.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("Shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(sctx)
}
