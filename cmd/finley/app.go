package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/finley/internal/classifier"
	"github.com/xaenox/finley/internal/conversation"
	"github.com/xaenox/finley/internal/devicesync"
	"github.com/xaenox/finley/internal/llm"
	"github.com/xaenox/finley/internal/observability"
	"github.com/xaenox/finley/internal/prompt"
	"github.com/xaenox/finley/internal/router"
	"github.com/xaenox/finley/internal/safety"
	"github.com/xaenox/finley/internal/storage"
	"github.com/xaenox/finley/pkg/config"
)

var errNoModel = errors.New("no language model configured: set openai.api_key or OPENAI_API_KEY")

// app holds the wired components shared by the subcommands.
type app struct {
	store  storage.Storage
	router *router.Router
}

func openStorage(db config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	switch db.Driver {
	case config.DriverPostgres:
		logger.Info("Using PostgreSQL storage")
		return storage.NewPostgresStorage(db.StorageConfig(), logger)
	case config.DriverBolt:
		logger.Info("Using bolt storage", zap.String("path", db.BoltPath))
		return storage.NewBoltStorage(db.BoltPath, logger)
	default:
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}
}

func newModel(cfg *config.Config, requireModel bool) (llm.Model, error) {
	if cfg.OpenAI.APIKey != "" {
		return llm.NewOpenAIModel(cfg.OpenAI.APIKey, cfg.Router.Light, logger.Named("llm")), nil
	}
	if requireModel {
		return nil, errNoModel
	}
	return llm.ModelFunc(func(context.Context, string, llm.Options) (*llm.Generation, error) {
		return nil, fmt.Errorf("%w: %v", llm.ErrGeneration, errNoModel)
	}), nil
}

func newApp(cfg *config.Config, sink observability.Sink, requireModel bool) (*app, error) {
	model, err := newModel(cfg, requireModel)
	if err != nil {
		return nil, err
	}

	store, err := openStorage(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if sink == nil {
		sink = observability.NewZapSink(logger)
	}
	compressor := conversation.NewCompressor(cfg.Conversation)
	r, err := router.New(router.Dependencies{
		Store:       store,
		Model:       model,
		Classifier:  classifier.NewIntentClassifier(),
		Guard:       safety.NewGuard(cfg.Safety.MinInputLength, cfg.Safety.MaxInputLength),
		Compressor:  compressor,
		Synthesizer: prompt.NewSynthesizer(),
		Sync:        devicesync.NewEngine(store, compressor, cfg.Sync, sink, logger.Named("sync")),
		Sink:        sink,
		Logger:      logger.Named("router"),
	}, cfg.Router)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	return &app{store: store, router: r}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close storage", zap.Error(err))
	}
}
