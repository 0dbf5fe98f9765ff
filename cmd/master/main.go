package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zapempire/economy-engine/internal/config"
	"github.com/zapempire/economy-engine/internal/masterapi"
	"github.com/zapempire/economy-engine/internal/nostr"
	"github.com/zapempire/economy-engine/internal/relay"
	"github.com/zapempire/economy-engine/internal/supervisor"
)

const defaultHTTPPort = "5340"

func main() {
	_ = godotenv.Load()
	setupLogging()
	log := logrus.WithField("role", "system-master")

	root, err := config.FindRoot(".")
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}
	manifest, err := supervisor.LoadManifest(config.ManifestPath(root))
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	hub := masterapi.NewHub(log)
	go hub.Run()

	sup, err := supervisor.New(supervisor.Config{
		Root:     root,
		Manifest: manifest,
		Settings: cfg,
		Notify:   masterapi.BroadcastLifecycle(hub),
		Log:      log,
	})
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// The control socket's shutdown command and a signal share one
	// cancellation path.
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	go func() {
		if err := sup.ServeControl(ctx, cancel); err != nil {
			log.Errorf("Control server: %v", err)
		}
	}()

	router := masterapi.SetupRouter(sup, hub)
	port := getEnvOrDefault("MASTER_HTTP_PORT", defaultHTTPPort)
	go func() {
		log.Infof("Status API listening on :%s", port)
		if err := router.Run(":" + port); err != nil {
			log.Errorf("Status API: %v", err)
		}
	}()

	if err := sup.StartAll(ctx); err != nil {
		log.Warnf("Fleet startup interrupted: %v", err)
	}
	go sup.Monitor(ctx)
	go runTreasury(ctx, root, cfg, log)

	<-ctx.Done()
	sup.Shutdown()
}

// runTreasury publishes kind-4301 fleet treasury telemetry. Best-effort:
// without a reachable relay the master runs fine, just silently.
func runTreasury(ctx context.Context, root string, cfg config.Config, log *logrus.Entry) {
	keys, err := nostr.Load(filepath.Join(root, cfg.DataDir, "system-master"))
	if err != nil {
		log.Warnf("Treasury keypair: %v", err)
		return
	}
	client := relay.NewClient(cfg.RelayURL, keys, log)
	if err := client.Connect(ctx); err != nil {
		return
	}
	go client.Run(ctx)
	defer client.Disconnect()

	ledger := filepath.Join(root, cfg.DataDir, "treasury", "tokens.jsonl")
	supervisor.NewTreasuryPublisher(ledger, client, log).Run(ctx)
}

func setupLogging() {
	logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	level, err := logrus.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// getEnvOrDefault returns the env var value or a default for
// non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
