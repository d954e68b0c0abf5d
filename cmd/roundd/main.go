// Package main runs the block guessing game: the round store, the winner
// resolution engine and the operator dashboard.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blockguess/internal/alert"
	"blockguess/internal/blocksource"
	"blockguess/internal/config"
	"blockguess/internal/connection"
	"blockguess/internal/game"
	"blockguess/internal/identity"
	"blockguess/internal/logger"
	"blockguess/internal/resolution"
	"blockguess/internal/store"
	"blockguess/internal/tui"

	dbpkg "blockguess/internal/db"

	"github.com/joho/godotenv"
)

// dashboardRefresh keeps countdowns moving between table changes.
const dashboardRefresh = time.Second

func main() {
	// Try to load .env from CWD if present; otherwise use environment as-is
	if _, statErr := os.Stat(".env"); statErr == nil {
		_ = godotenv.Load(".env")
	}

	cfg := config.Load()

	// If debug logs are enabled, write them to file to avoid interfering with TUI
	var logWriter io.Writer = os.Stderr
	if cfg.Debug {
		logFile, err := os.OpenFile("roundd.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			defer logFile.Close()
			logWriter = logFile
			fmt.Fprintf(os.Stderr, "Debug logs written to roundd.log\n")
		} else {
			fmt.Fprintf(os.Stderr, "Warning: failed to open log file, logs will go to stderr (may interfere with TUI): %v\n", err)
		}
	}

	log := logger.NewWithWriter(cfg.Debug, logWriter)
	defer func() { _ = log.Sync() }()

	fmt.Printf("Round daemon starting...\n")
	fmt.Printf("Config loaded: %s\n", cfg.DebugString())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	alerter := newAlerter(cfg, log)

	conn := connection.New(dialer(cfg, log), connection.Config{
		MaxRetries:     cfg.ConnectRetries,
		BaseDelay:      cfg.ConnectBaseDelay,
		HealthInterval: cfg.HealthInterval,
	}, connection.WithLogger(log.Named("connection")), connection.WithAlerter(alerter))
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	games := game.NewManager(conn,
		game.WithMaxGuess(cfg.MaxGuess),
		game.WithLogger(log.Named("game")),
	)
	defer games.Close()

	fmt.Printf("Connecting to %s store...\n", cfg.Backend)
	go func() {
		if err := conn.Run(ctx); err != nil {
			log.Printf("health watch stopped: %v", err)
		}
	}()

	source, err := newSource(cfg)
	if err != nil {
		log.Fatalf("failed to init block source: %v", err)
	}

	engine, err := resolution.New(games, source,
		resolution.WithInterval(cfg.PollInterval),
		resolution.WithLogger(log.Named("resolution")),
		resolution.WithAlerter(alerter),
	)
	if err != nil {
		log.Fatalf("failed to init resolution engine: %v", err)
	}

	// The engine starts once the store is reachable; until then the
	// dashboard shows the link as disconnected.
	booted := make(chan struct{})
	go func() {
		defer close(booted)
		if _, err := conn.WaitConnected(ctx); err != nil {
			return
		}
		if err := engine.Start(ctx); err != nil {
			log.Errorf("failed to start resolution engine: %v", err)
			return
		}
		if cfg.BlockSource == config.SourceCometBFT {
			heads := blocksource.NewHeadWatcher(cfg.RPCURL, cfg.WSURL(), engine.BlockSeen, log.Named("heads"))
			go func() {
				if err := heads.Run(ctx); err != nil {
					log.Printf("head watch stopped: %v", err)
				}
			}()
		}
	}()
	defer func() {
		<-booted
		if err := engine.Close(); err != nil {
			log.Printf("close engine: %v", err)
		}
	}()

	bridge := tui.NewBridge(games, conn)
	go bridge.Run(ctx, dashboardRefresh)

	operator := identity.User{ID: cfg.OperatorID, DisplayName: cfg.OperatorName}
	console := tui.NewConsole(games, engine, operator, identity.NewRegistry(cfg.AdminIDs))
	if err := tui.Run(ctx, console, bridge.Updates()); err != nil {
		log.Printf("TUI error: %v", err)
	}

	// TUI exited, cancel context to trigger shutdown
	cancel()
	log.Println("shutting down...")

	// Ensure logs flushed in some environments
	_ = os.Stderr.Sync()
	_ = os.Stdout.Sync()
}

// dialer opens the configured store backing.
func dialer(cfg config.Config, log *logger.Logger) connection.Dialer {
	return func(ctx context.Context) (store.Store, error) {
		if cfg.Backend != config.BackendDurable {
			return store.NewMemory(log.Named("store")), nil
		}

		gormDB, err := dbpkg.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if gormDB == nil {
			return nil, fmt.Errorf("connect database: DATABASE_URL not provided")
		}
		st, err := store.OpenDurable(ctx, gormDB, log.Named("store"))
		if err != nil {
			if sqlDB, dbErr := gormDB.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
			return nil, err
		}
		log.Printf("DB connected, migrations applied")
		return st, nil
	}
}

func newSource(cfg config.Config) (blocksource.Source, error) {
	switch cfg.BlockSource {
	case config.SourceCometBFT:
		return blocksource.NewCometBFT(cfg.RPCURL, cfg.WSURL())
	case config.SourceEsplora, "":
		return blocksource.NewEsplora(cfg.EsploraURL), nil
	default:
		return nil, fmt.Errorf("unsupported BLOCK_SOURCE: %s", cfg.BlockSource)
	}
}

func newAlerter(cfg config.Config, log *logger.Logger) alert.Alerter {
	alerts := alert.Multi{alert.Log{L: log.Named("alert")}}
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		return alerts
	}
	tg, err := alert.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Printf("telegram alerts disabled: %v", err)
		return alerts
	}
	return append(alerts, tg)
}
