package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/karthikraju391/rag-chat-client/nats_service"
	"github.com/spf13/cobra"
)

var errNoNats = errors.New("nats.url is not configured (use --nats-url or RAGCHAT_NATS_URL)")

func (c *cli) runWatch(cmd *cobra.Command, args []string) error {
	if c.cfg.Nats.URL == "" {
		return errNoNats
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	svc, err := nats_service.NewNatsService(c.cfg.Nats, c.logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	consumeCtx, err := svc.SubscribeToConversation(ctx, args[0], func(ev *models.Event) {
		io.WriteString(out, formatEvent(ev, time.Now()))
	})
	if err != nil {
		return err
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	return nil
}

// formatEvent renders one mirrored event as a line (plus sources) for watch.
func formatEvent(ev *models.Event, now time.Time) string {
	when := humanize.RelTime(ev.At, now, "ago", "from now")

	switch ev.Kind {
	case models.EventClear:
		return fmt.Sprintf("[%s] conversation cleared\n", when)

	case models.EventToggle:
		state := "collapsed"
		if ev.Message != nil && ev.Message.SourcesExpanded {
			state = "expanded"
		}
		return fmt.Sprintf("[%s] #%d sources %s\n", when, ev.Index+1, state)

	case models.EventMessage:
		if ev.Message == nil {
			return fmt.Sprintf("[%s] #%d (empty)\n", when, ev.Index+1)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] #%d %s: %s\n", when, ev.Index+1, ev.Message.Role, ev.Message.Content)
		for i, src := range ev.Message.Sources {
			label := src.Label
			if label == "" {
				label = src.EntityID
			}
			fmt.Fprintf(&b, "    %d. %s\n", i+1, label)
		}
		return b.String()

	default:
		return fmt.Sprintf("[%s] %s\n", when, ev.Kind)
	}
}
