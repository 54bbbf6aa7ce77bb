package main

import (
	"fmt"
	"time"

	"github.com/karthikraju391/rag-chat-client/handlers"
	"github.com/karthikraju391/rag-chat-client/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 5 * time.Second

func (c *cli) runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	k := newCore(c.cfg, c.logger)

	mirror, closeMirror, err := openMirror(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer closeMirror()

	registry := handlers.NewRegistry(func(id string) *session.Session {
		s := k.newSession(id)
		if mirror != nil {
			mirror.Attach(s.Store())
		}
		return s
	})

	app := handlers.NewApp(handlers.Deps{
		Registry:     registry,
		Connectivity: k.monitor,
		Limiter:      rate.NewLimiter(rate.Limit(c.cfg.Server.RateRPS), c.cfg.Server.RateBurst),
		Logger:       c.logger,
		AccessLog:    true,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stopMonitor := k.monitor.Start(gctx)
		<-gctx.Done()
		stopMonitor()
		return nil
	})

	g.Go(func() error {
		c.logger.Info("starting server", zap.String("addr", c.cfg.Server.Addr), zap.String("base_url", c.cfg.BaseURL))
		if err := app.Listen(c.cfg.Server.Addr); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down server")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return fmt.Errorf("error shutting down server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Info("server gracefully stopped")
	return nil
}
