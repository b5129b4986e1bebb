// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

// Davintod is the chat-bot daemon. It connects to the configured
// homeserver, pairing on first boot and restoring sealed credentials
// on every boot after that, then dispatches inbound commands until
// the process is stopped or the server revokes the session.
//
// On startup:
//  1. Loads configuration (DAVINTO_CONFIG or --config).
//  2. Opens the credential store and the data stores.
//  3. Registers the built-in commands and freezes the registry.
//  4. Pairs (token registration or password login) when no stored
//     credential exists; the operator is prompted on the terminal.
//  5. Runs the sync loop, reconnecting on recoverable failures.
//
// Exit is non-zero on fatal misconfiguration, failed pairing, failed
// credential persistence, or server-side logout.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/davinto-labs/davinto/bot"
	"github.com/davinto-labs/davinto/commands"
	"github.com/davinto-labs/davinto/config"
	"github.com/davinto-labs/davinto/lib/clock"
	"github.com/davinto-labs/davinto/lib/secret"
	"github.com/davinto-labs/davinto/llm"
	"github.com/davinto-labs/davinto/messaging"
	"github.com/davinto-labs/davinto/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		logLevel   string
		logout     bool
	)
	pflag.StringVar(&configPath, "config", "", "path to davinto.yaml (overrides DAVINTO_CONFIG)")
	pflag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pflag.BoolVar(&logout, "logout", false, "invalidate the stored session on the server, remove the credential file, and exit")
	pflag.Parse()

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		HTTPClient: &http.Client{
			// Longer than the sync long-poll so the server, not the
			// client, ends the wait.
			Timeout: 60 * time.Second,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	credentials, err := bot.OpenCredentialStore(cfg.Paths.State)
	if err != nil {
		return err
	}
	defer credentials.Close()

	if logout {
		return runLogout(ctx, logger, client, credentials)
	}

	// Reachability probe before any pairing prompt: a typo'd
	// homeserver URL should fail here, not after the operator has
	// typed a pairing code.
	versions, err := client.ServerVersions(ctx)
	if err != nil {
		return fmt.Errorf("homeserver unreachable: %w", err)
	}
	logger.Info("homeserver reachable", "url", cfg.Homeserver.URL, "versions", versions.Versions)

	dataStore, err := store.Open(cfg.Paths.Data)
	if err != nil {
		return err
	}

	clk := clock.Real()

	var llmClient *llm.Client
	if cfg.AIEnabled() {
		llmClient, err = newLLMClient(cfg)
		if err != nil {
			return err
		}
		logger.Info("AI backend configured", "chat_model", cfg.OpenAI.ChatModel)
	} else {
		logger.Info("no AI backend configured, ai and image commands disabled")
	}

	registry := bot.NewRegistry()

	// The dispatcher needs the bot's own user ID to filter echoes,
	// which is only known once the manager has credentials, so it is
	// built lazily on the first event batch. The gateway holds the
	// manager's session proxy and therefore follows reconnects. The
	// manager calls OnEvent from a single goroutine, so no locking is
	// needed here.
	var (
		manager    *bot.SessionManager
		dispatcher *bot.Dispatcher
	)
	manager = bot.NewSessionManager(bot.SessionConfig{
		Client:        client,
		Credentials:   credentials,
		Prompter:      &terminalPrompter{},
		Username:      cfg.Homeserver.Username,
		PairWithToken: cfg.Homeserver.Pairing == config.PairToken,
		Clock:         clk,
		Logger:        logger,
		OnEvent: func(ctx context.Context, event messaging.Event, roomID string, isGroup bool) {
			if dispatcher == nil {
				gateway := bot.NewGateway(manager.Proxy(), clk, logger)
				dispatcher = bot.NewDispatcher(registry, gateway, dataStore, clk, logger,
					manager.UserID(), cfg.Bot.Owner, cfg.Bot.Prefix)
			}
			dispatcher.Dispatch(ctx, event, roomID, isGroup)
		},
	})

	err = commands.RegisterAll(commands.Deps{
		Registry: registry,
		Store:    dataStore,
		Clock:    clk,
		LLM:      llmClient,
		BotName:  cfg.Bot.Name,
		Prefix:   cfg.Bot.Prefix,
		Stats: func() bot.Stats {
			if dispatcher == nil {
				return bot.Stats{}
			}
			return dispatcher.Stats()
		},
	})
	if err != nil {
		return err
	}
	registry.Freeze()

	logger.Info("starting", "bot", cfg.Bot.Name, "homeserver", cfg.Homeserver.URL)

	runErr := manager.Run(ctx)

	// Shutdown stops intake first, then drains in-flight handlers.
	if dispatcher != nil {
		dispatcher.Wait()
	}

	if errors.Is(runErr, bot.ErrLoggedOut) {
		return fmt.Errorf("session revoked by the server; remove %s and re-pair", cfg.Paths.State)
	}
	return runErr
}

// runLogout invalidates the stored session server-side and removes
// the credential file, so the next start pairs fresh. A token the
// server has already revoked still clears the local file.
func runLogout(ctx context.Context, logger *slog.Logger, client *messaging.Client, credentials *bot.CredentialStore) error {
	stored, err := credentials.Load()
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("no stored credentials to log out")
	}
	defer stored.Close()

	session, err := client.SessionFromToken(stored.UserID, stored.DeviceID, stored.AccessToken)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Logout(ctx); err != nil {
		if !messaging.IsLoggedOut(err) {
			return err
		}
		logger.Info("server had already revoked the session")
	}
	if err := credentials.Remove(); err != nil {
		return err
	}
	logger.Info("logged out and removed stored credentials", "user_id", stored.UserID)
	return nil
}

// loadConfig prefers the --config flag over DAVINTO_CONFIG.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

func newLogger(level string) (*slog.Logger, error) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel,
	})), nil
}

// newLLMClient reads the API key file and builds the client. The key
// file may be "-" to read the key from stdin at startup.
func newLLMClient(cfg *config.Config) (*llm.Client, error) {
	apiKey, err := secret.ReadFromPath(cfg.OpenAI.APIKeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading API key: %w", err)
	}
	return llm.NewClient(llm.Config{
		BaseURL:    cfg.OpenAI.BaseURL,
		APIKey:     apiKey,
		ChatModel:  cfg.OpenAI.ChatModel,
		ImageModel: cfg.OpenAI.ImageModel,
	})
}
