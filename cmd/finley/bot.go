package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/finley/internal/bot"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Serve Finley over Telegram",
	Long: `Starts long polling against the Telegram Bot API. The token comes from
telegram.token in the config file or the TELEGRAM_TOKEN environment variable.`,
	RunE: runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	if cfg.Telegram.Token == "" {
		return errors.New("telegram token is required: set telegram.token or TELEGRAM_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, nil, true)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := bot.New(cfg.Telegram.Token, cfg.Telegram.Debug, a.router, logger.Named("bot"))
	if err != nil {
		return err
	}

	if err := b.Start(ctx); err != nil {
		logger.Error("Bot error", zap.Error(err))
		return err
	}
	logger.Info("Received shutdown signal")
	return nil
}
