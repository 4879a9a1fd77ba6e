package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/xiaot623/viper/internal/chat"
	"github.com/xiaot623/viper/internal/observability"
	"github.com/xiaot623/viper/internal/repl"
	"github.com/xiaot623/viper/internal/session"
)

func runChat(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	persist, backend := newPersistence(logger)
	reg, err := newRegistry(ctx, backend, logger)
	if err != nil {
		return err
	}
	dispatcher, err := newDispatcher(ctx, logger)
	if err != nil {
		return err
	}

	store := session.NewStore(persist, logger)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load chats: %w", err)
	}

	orch := chat.New(store, reg, dispatcher, chat.Options{
		SyncTimeout: cfg.SyncTimeout,
		Metrics:     observability.NewMetrics(),
		Logger:      logger,
	})
	r := repl.New(orch, store, os.Stdin, os.Stdout, logger)

	// Ctrl-C stops the reply in progress; at the prompt it quits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-sigCh:
				if !r.Interrupt() {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return r.Run(ctx)
}
