package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zapempire/economy-engine/internal/agent"
	"github.com/zapempire/economy-engine/internal/config"
	"github.com/zapempire/economy-engine/internal/nostr"
	"github.com/zapempire/economy-engine/internal/relay"
	"github.com/zapempire/economy-engine/internal/strategy"
	"github.com/zapempire/economy-engine/internal/wallet"
)

func main() {
	_ = godotenv.Load()
	setupLogging()

	index, err := strconv.Atoi(requireEnv("AGENT_INDEX"))
	if err != nil {
		logrus.Fatalf("FATAL: AGENT_INDEX must be a number 0-9, got %q", os.Getenv("AGENT_INDEX"))
	}
	profile, err := strategy.ProfileFor(index)
	if err != nil {
		logrus.Fatalf("FATAL: %v", err)
	}

	log := logrus.WithFields(logrus.Fields{
		"agent": profile.ID,
		"role":  "user-agent",
	})

	// Agents run with cwd = project root when spawned by the
	// supervisor; a manual launch from a subdirectory walks up to it.
	root := "."
	if found, err := config.FindRoot("."); err == nil {
		root = found
	}
	cfg, err := config.Load(root)
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}

	dataDir := cfg.AgentDataDir(profile.ID)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("FATAL: create data dir: %v", err)
	}
	keys, err := nostr.Load(dataDir)
	if err != nil {
		log.Fatalf("FATAL: load keypair: %v", err)
	}

	mint := wallet.NewClient(wallet.Config{MintURL: cfg.MintURL, Timeout: 10 * time.Second})
	w, err := wallet.New(profile.ID, dataDir, mint, log)
	if err != nil {
		log.Fatalf("FATAL: open wallet: %v", err)
	}

	a, err := agent.New(agent.Config{
		Profile:  profile,
		Settings: cfg,
		Keys:     keys,
		Relay:    relay.NewClient(cfg.RelayURL, keys, log),
		Wallet:   w,
		Log:      log,
	})
	if err != nil {
		log.Fatalf("FATAL: build agent: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"name":        profile.DisplayName,
		"personality": profile.Personality.Name,
		"relay":       cfg.RelayURL,
		"mint":        cfg.MintURL,
	}).Info("Starting agent")

	if err := a.Run(ctx); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

// setupLogging installs the fleet-wide JSON log format; per-agent log
// files are split by the supervisor, not here.
func setupLogging() {
	logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	level, err := logrus.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// requireEnv reads a required environment variable and exits if it is
// not set.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		logrus.Fatalf("FATAL: Required environment variable %s is not set", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a default for
// non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
