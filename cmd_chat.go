package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/karthikraju391/rag-chat-client/health"
	"github.com/karthikraju391/rag-chat-client/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func (c *cli) runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	k := newCore(c.cfg, c.logger)
	s := k.newSession(uuid.NewString())

	mirror, closeMirror, err := openMirror(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer closeMirror()
	if mirror != nil {
		mirror.Attach(s.Store())
	}

	if !tui.IsTerminal(os.Stdin) {
		// line mode answers right away, so learn the state before reading
		k.monitor.Check()
		stopMonitor := k.monitor.Start(ctx)
		defer stopMonitor()
		return tui.RunPlain(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), s)
	}

	stopMonitor := k.monitor.Start(ctx)
	defer stopMonitor()

	c.logger.Info("starting chat", zap.String("base_url", c.cfg.BaseURL), zap.String("conversation", s.Store().ID()))
	return tui.Run(ctx, tui.Options{
		Session:      s,
		Connectivity: k.monitor,
		Markdown:     true,
		Logger:       c.logger,
	})
}

func (c *cli) runAsk(cmd *cobra.Command, args []string) error {
	k := newCore(c.cfg, c.logger)
	if k.monitor.Check() != health.StateUp {
		return fmt.Errorf("chat service at %s is not reachable", c.cfg.BaseURL)
	}

	s := k.newSession(uuid.NewString())
	reply, err := s.Ask(strings.Join(args, " "))
	if err != nil {
		return err
	}
	tui.WriteAnswer(cmd.OutOrStdout(), reply, true)
	return nil
}

func (c *cli) runHealth(cmd *cobra.Command, args []string) error {
	k := newCore(c.cfg, c.logger)
	state := k.monitor.Check()
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c.cfg.BaseURL, state)
	if state != health.StateUp {
		return fmt.Errorf("chat service is %s", state)
	}
	return nil
}
