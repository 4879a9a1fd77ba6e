package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xiaot623/viper/internal/adapter/llm"
	"github.com/xiaot623/viper/internal/adapter/persistence"
	"github.com/xiaot623/viper/internal/config"
	"github.com/xiaot623/viper/internal/domain"
	"github.com/xiaot623/viper/internal/policy"
	"github.com/xiaot623/viper/internal/registry"
)

// mockBaseURL is the endpoint of the built-in model in MOCK mode.
const mockBaseURL = "http://mock.local"

var (
	cfg *config.Config

	logLevel   string
	backendURL string
	modelsFile string
	httpAddr   string

	// Single model given on the command line.
	modelName    string
	modelBaseURL string
	modelAPIKey  string

	rootCmd = &cobra.Command{
		Use:          "viper",
		Short:        "Streaming chat client and backend for OpenAI-compatible endpoints",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			// Flags win over the environment.
			if cmd.Flags().Changed("log-level") {
				loaded.LogLevel = logLevel
			}
			if cmd.Flags().Changed("backend") {
				loaded.BackendURL = backendURL
			}
			if cmd.Flags().Changed("models-file") {
				loaded.ModelsFile = modelsFile
			}
			if cmd.Flags().Changed("addr") {
				loaded.HTTPAddr = httpAddr
			}
			cfg = loaded
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the persistence backend and completion proxy",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with the selected model",
		Args:  cobra.NoArgs,
		RunE:  runChat, // Defined in cmd_chat.go
	}

	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "List configured models, or probe the selected endpoint",
		Args:  cobra.NoArgs,
		RunE:  runModels, // Defined in cmd_models.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "persistence backend URL (default: in-memory)")
	rootCmd.PersistentFlags().StringVar(&modelsFile, "models-file", "", "YAML model registry file")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "model name for a single command-line model")
	rootCmd.PersistentFlags().StringVar(&modelBaseURL, "base-url", "", "API base URL for a single command-line model")
	rootCmd.PersistentFlags().StringVar(&modelAPIKey, "api-key", "", "API key for a single command-line model")

	serveCmd.Flags().StringVar(&httpAddr, "addr", "", "listen address")
	modelsCmd.Flags().Bool("probe", false, "ask the selected endpoint for its models")

	rootCmd.AddCommand(serveCmd, chatCmd, modelsCmd)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func newDispatcher(ctx context.Context, logger *slog.Logger) (*llm.Client, error) {
	engine, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	return llm.NewDispatcher(cfg.Mode, llm.Options{
		Timeout: cfg.RequestTimeout,
		Policy:  engine,
		Logger:  logger,
	}), nil
}

// newPersistence returns the backend client, or an in-memory store when no backend is configured.
func newPersistence(logger *slog.Logger) (persistence.Service, *persistence.Client) {
	if cfg.BackendURL == "" {
		logger.Info("no backend configured, chats are kept in memory")
		return persistence.NewMemory(), nil
	}
	client := persistence.NewClient(cfg.BackendURL, cfg.SyncTimeout)
	return client, client
}

// newRegistry picks the model source: a file, the command line, the backend, or the mock model.
func newRegistry(ctx context.Context, backend *persistence.Client, logger *slog.Logger) (registry.Registry, error) {
	switch {
	case cfg.ModelsFile != "":
		file, err := registry.LoadFile(cfg.ModelsFile, logger)
		if err != nil {
			return nil, err
		}
		if err := file.Watch(ctx); err != nil {
			logger.Warn("failed to watch models file", "path", cfg.ModelsFile, "error", err)
		}
		return file, nil
	case modelBaseURL != "" || modelName != "":
		model := domain.ModelConfig{
			Name:    modelName,
			BaseURL: modelBaseURL,
			APIKey:  modelAPIKey,
			Source:  "flags",
		}
		return registry.NewStatic([]domain.ModelConfig{model}, model.Name), nil
	case backend != nil:
		return registry.NewRemote(backend), nil
	case isMock():
		model := domain.ModelConfig{Name: "mock", BaseURL: mockBaseURL, Source: "mock"}
		return registry.NewStatic([]domain.ModelConfig{model}, model.Name), nil
	default:
		return registry.NewStatic(nil, ""), nil
	}
}

func isMock() bool {
	return strings.EqualFold(cfg.Mode, llm.ModeMock)
}
