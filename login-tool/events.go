package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesmerverse/vettid-dev/loginkit/login"
	"github.com/mesmerverse/vettid-dev/loginkit/notify"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow login events published over NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.NATS.URL == "" {
			return fmt.Errorf("nats.url is not configured")
		}
		n, err := notify.Connect(cfg.NATS)
		if err != nil {
			return err
		}
		defer n.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		events := make(chan login.Event, 64)
		errc := make(chan error, 1)
		go func() { errc <- n.Watch(ctx, events) }()

		enc := json.NewEncoder(cmd.OutOrStdout())
		for {
			select {
			case ev := <-events:
				if err := enc.Encode(ev); err != nil {
					return err
				}
			case err := <-errc:
				return err
			case <-ctx.Done():
				return ignoreCanceled(<-errc)
			}
		}
	},
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
