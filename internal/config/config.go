package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	constantsFile = "config/constants.json"
	manifestFile  = "config/agents.json"

	defaultRelayURL       = "ws://127.0.0.1:7777"
	defaultMintURL        = "http://127.0.0.1:3338"
	defaultDataDir        = "data"
	defaultTickSeconds    = 60
	defaultInitialBalance = 10_000
	defaultProductionCost = 70
)

// Config carries the project-wide economics and endpoints. Values come from
// config/constants.json when present, then environment overrides:
// RELAY_URL, MINT_URL, DATA_DIR, TICK_INTERVAL.
type Config struct {
	RelayURL           string           `json:"relay_url"`
	MintURL            string           `json:"mint_url"`
	DataDir            string           `json:"data_dir"`
	TickSeconds        int              `json:"tick_interval_default"`
	InitialBalanceSats int64            `json:"initial_balance_sats"`
	BaseProductionCost map[string]int64 `json:"base_production_cost"`
}

// Defaults returns the built-in configuration used when no constants file
// exists.
func Defaults() Config {
	return Config{
		RelayURL:           defaultRelayURL,
		MintURL:            defaultMintURL,
		DataDir:            defaultDataDir,
		TickSeconds:        defaultTickSeconds,
		InitialBalanceSats: defaultInitialBalance,
	}
}

// Load reads constants.json under root (missing file is fine) and applies
// environment overrides on top.
func Load(root string) (Config, error) {
	cfg := Defaults()

	path := filepath.Join(root, constantsFile)
	raw, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %v", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %v", path, err)
	}

	if v := os.Getenv("RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("MINT_URL"); v != "" {
		cfg.MintURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return cfg, fmt.Errorf("bad TICK_INTERVAL %q", v)
		}
		cfg.TickSeconds = secs
	}
	return cfg, nil
}

// TickInterval is the agent loop period.
func (c Config) TickInterval() time.Duration {
	if c.TickSeconds <= 0 {
		return defaultTickSeconds * time.Second
	}
	return time.Duration(c.TickSeconds) * time.Second
}

// ProductionCost returns the base cost of producing a program in the given
// category (before personality multipliers).
func (c Config) ProductionCost(category string) int64 {
	if v, ok := c.BaseProductionCost[category]; ok {
		return v
	}
	return defaultProductionCost
}

// AgentDataDir is the per-agent subtree; each agent exclusively owns its own.
func (c Config) AgentDataDir(agentID string) string {
	return filepath.Join(c.DataDir, agentID)
}

// ManifestPath locates the supervisor manifest under root.
func ManifestPath(root string) string {
	return filepath.Join(root, manifestFile)
}

// FindRoot walks up from start looking for config/agents.json, the marker
// of a project checkout. Used by zapctl and the supervisor when launched
// from a subdirectory.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, manifestFile)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s found above %s", manifestFile, start)
		}
		dir = parent
	}
}

// HostPort extracts the dialable host:port from a relay or mint URL, used
// by the supervisor's TCP readiness probes.
func HostPort(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %v", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	if u.Port() == "" {
		switch u.Scheme {
		case "http", "ws":
			return u.Host + ":80", nil
		case "https", "wss":
			return u.Host + ":443", nil
		}
		return "", fmt.Errorf("url %q has no port", raw)
	}
	return u.Host, nil
}
