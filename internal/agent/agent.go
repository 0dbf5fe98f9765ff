// Package agent is the runtime for one economy participant. It boots
// the identity, wallet, and relay connection, then runs three loops —
// listen, tick, persist — trading generated Python programs with its
// peers until the context is cancelled.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/zapempire/economy-engine/internal/chat"
	"github.com/zapempire/economy-engine/internal/config"
	"github.com/zapempire/economy-engine/internal/market"
	"github.com/zapempire/economy-engine/internal/nostr"
	"github.com/zapempire/economy-engine/internal/progen"
	"github.com/zapempire/economy-engine/internal/relay"
	"github.com/zapempire/economy-engine/internal/reputation"
	"github.com/zapempire/economy-engine/internal/sandbox"
	"github.com/zapempire/economy-engine/internal/strategy"
	"github.com/zapempire/economy-engine/internal/trade"
	"github.com/zapempire/economy-engine/pkg/models"
)

const (
	persistInterval = 30 * time.Second

	walletInitAttempts   = 3
	walletInitRetryDelay = 2 * time.Second

	// Learned peer names expire eventually; profiles replay from relay
	// history on every reconnect, so the cache refills itself.
	nameTTL = 24 * time.Hour
)

// Relay is the slice of the relay client the agent drives. Implemented
// by relay.Client.
type Relay interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context)
	Publish(ctx context.Context, ev *models.Event) error
	Subscribe(ctx context.Context, subID string, filters ...models.Filter) error
	Events() <-chan relay.Incoming
	Disconnect()
}

// Wallet is the ecash surface the agent spends and earns through.
// Implemented by wallet.Wallet.
type Wallet interface {
	Init(ctx context.Context) error
	Balance() int64
	Fund(ctx context.Context, amount int64) error
	Deduct(ctx context.Context, amount int64) error
	CreatePayment(ctx context.Context, amount int64) (string, error)
	ReceivePayment(ctx context.Context, token string) (int64, error)
	MintURL() string
}

// Validator screens generated programs before they are listed.
// Implemented by sandbox.Sandbox.
type Validator interface {
	Test(ctx context.Context, source string) bool
}

// Config assembles one agent's identity, economics, and I/O surfaces.
type Config struct {
	Profile  strategy.Profile
	Settings config.Config
	Keys     *nostr.KeyPair
	Relay    Relay
	Wallet   Wallet
	Sandbox  Validator // nil gets a real python3 sandbox
	Log      *logrus.Entry
	Rng      *rand.Rand // nil gets a time-seeded source
}

// Agent is one trading participant: a keypair, a wallet, a shelf of
// programs, and the loops that listen, tick, and persist.
type Agent struct {
	profile  strategy.Profile
	settings config.Config
	keys     *nostr.KeyPair
	relay    Relay
	wallet   Wallet
	sandbox  Validator
	log      *logrus.Entry

	dataDir     string
	rng         *rand.Rand
	walletRetry time.Duration

	ledger    *reputation.Ledger
	view      *market.View
	publisher *market.Publisher
	strategy  *strategy.Engine
	progen    *progen.Generator
	chat      *chat.Generator
	trades    *trade.Engine
	names     *cache.Cache // pubkey -> announced kind-0 name

	mu              sync.Mutex
	programs        []*models.Program
	tickCount       int64
	startedAt       int64
	programsCreated int64
	productionSpent int64
}

// New wires an agent from its profile and collaborators. Nothing is
// contacted until Run.
func New(cfg Config) (*Agent, error) {
	if cfg.Keys == nil {
		return nil, errors.New("agent: keys required")
	}
	if cfg.Relay == nil || cfg.Wallet == nil {
		return nil, errors.New("agent: relay and wallet required")
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Sandbox == nil {
		cfg.Sandbox = sandbox.New(0, cfg.Log)
	}
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	a := &Agent{
		profile:     cfg.Profile,
		settings:    cfg.Settings,
		keys:        cfg.Keys,
		relay:       cfg.Relay,
		wallet:      cfg.Wallet,
		sandbox:     cfg.Sandbox,
		log:         cfg.Log,
		dataDir:     cfg.Settings.AgentDataDir(cfg.Profile.ID),
		rng:         rand.New(rand.NewSource(rng.Int63())),
		walletRetry: walletInitRetryDelay,
		startedAt:   time.Now().Unix(),
		names:       cache.New(nameTTL, time.Hour),
	}
	a.ledger = reputation.NewLedger(a.dataDir, cfg.Log)
	a.view = market.NewView(cfg.Keys.PublicHex(), a.nameOf)
	a.publisher = market.NewPublisher(cfg.Relay, cfg.Log)

	// The chat generator is shared across goroutines and locks
	// internally; the rest roll dice on the tick loop only. Each gets
	// its own stream so the seeds stay independent.
	a.strategy = strategy.NewEngine(cfg.Profile.Personality, cfg.Wallet.Balance,
		cfg.Settings.InitialBalanceSats, rand.New(rand.NewSource(rng.Int63())))
	a.progen = progen.NewGenerator(cfg.Profile.Personality, cfg.Settings.ProductionCost,
		rand.New(rand.NewSource(rng.Int63())))
	a.chat = chat.NewGenerator(cfg.Profile.DisplayName, rand.New(rand.NewSource(rng.Int63())))

	a.trades = trade.NewEngine(trade.Config{
		AgentName: cfg.Profile.DisplayName,
		MintURL:   cfg.Wallet.MintURL(),
		Publisher: cfg.Relay,
		Cipher:    cfg.Keys,
		Trust:     a.ledger,
		Wallet:    cfg.Wallet,
		Inventory: &inventory{a},
		Decider:   a.strategy,
		Notifier:  &notifier{a},
		Log:       cfg.Log,
	})
	return a, nil
}

// Run boots the agent and drives its loops until ctx is cancelled, then
// flushes state and disconnects.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.boot(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); a.relay.Run(ctx) }()
	go func() { defer wg.Done(); a.listen(ctx) }()
	go func() { defer wg.Done(); a.tickLoop(ctx) }()
	go func() { defer wg.Done(); a.persistLoop(ctx) }()
	wg.Wait()

	a.shutdown()
	return nil
}

func (a *Agent) boot(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(a.dataDir, "programs"), 0o755); err != nil {
		return fmt.Errorf("create data dirs: %v", err)
	}

	a.initWallet(ctx)

	if err := a.ledger.Load(); err != nil {
		return err
	}
	if err := a.relay.Connect(ctx); err != nil {
		return fmt.Errorf("connect relay: %v", err)
	}
	if err := a.loadState(); err != nil {
		return err
	}

	a.publishIdentity(ctx)
	a.subscribeAll(ctx)
	a.postChat(ctx, a.chat.Greeting())
	a.publishStatus(ctx)

	a.log.WithFields(logrus.Fields{
		"pubkey":  a.keys.PublicHex()[:12] + "...",
		"balance": a.wallet.Balance(),
	}).Info("Agent ready")
	return nil
}

// initWallet health-checks the mint with a few retries and seeds the
// initial balance into an empty wallet. A dead mint degrades the agent
// to browsing: wallet calls fail per-trade instead of blocking boot.
func (a *Agent) initWallet(ctx context.Context) {
	var err error
	for attempt := 1; attempt <= walletInitAttempts; attempt++ {
		if err = a.wallet.Init(ctx); err == nil {
			break
		}
		if attempt == walletInitAttempts {
			a.log.Warnf("Mint unreachable after %d attempts, trading without funds: %v",
				walletInitAttempts, err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.walletRetry):
		}
	}

	if a.wallet.Balance() == 0 {
		if err := a.wallet.Fund(ctx, a.settings.InitialBalanceSats); err != nil {
			a.log.Warnf("Seed wallet: %v", err)
		}
	}
}

func (a *Agent) subscribeAll(ctx context.Context) {
	subs := []struct {
		id     string
		filter models.Filter
	}{
		{"listings", models.Filter{Kinds: []int{models.KindListing}}},
		{"chat", models.Filter{Kinds: []int{models.KindChat}}},
		{"metadata", models.Filter{Kinds: []int{models.KindProfile}}},
		{"trades", models.Filter{
			Kinds: []int{
				models.KindTradeOffer, models.KindTradeAccept, models.KindTradeReject,
				models.KindTradeComplete, models.KindPayment, models.KindDelivery,
				models.KindZapReceipt,
			},
			PTags: []string{a.keys.PublicHex()},
		}},
	}
	for _, s := range subs {
		if err := a.relay.Subscribe(ctx, s.id, s.filter); err != nil {
			// The registration survives; the client re-sends it on
			// reconnect.
			a.log.Warnf("Subscribe %s: %v", s.id, err)
		}
	}
}

// listen drains the relay stream until it closes.
func (a *Agent) listen(ctx context.Context) {
	for inc := range a.relay.Events() {
		a.dispatch(ctx, inc.Event)
	}
}

func (a *Agent) dispatch(ctx context.Context, ev *models.Event) {
	switch ev.Kind {
	case models.KindProfile:
		a.onProfile(ev)
	case models.KindChat:
		// Observed only; nothing parses peer chatter.
	case models.KindListing:
		a.view.OnListing(ev)
	case models.KindTradeOffer, models.KindTradeAccept, models.KindTradeReject,
		models.KindTradeComplete, models.KindPayment, models.KindDelivery:
		a.trades.HandleEvent(ctx, ev)
	case models.KindZapReceipt:
		// Zap receipts are telemetry for outside observers.
	default:
		a.log.Debugf("Ignoring kind %d event", ev.Kind)
	}
}

func (a *Agent) onProfile(ev *models.Event) {
	var p models.ProfileContent
	if err := json.Unmarshal([]byte(ev.Content), &p); err != nil || p.Name == "" {
		return
	}
	a.names.Set(ev.PubKey, p.Name, cache.DefaultExpiration)
}

// nameOf resolves a pubkey to the name its kind-0 profile announced,
// falling back to a pubkey prefix.
func (a *Agent) nameOf(pubkey string) string {
	if v, ok := a.names.Get(pubkey); ok {
		return v.(string)
	}
	if len(pubkey) > 8 {
		return pubkey[:8] + "..."
	}
	return pubkey
}

func (a *Agent) tickLoop(ctx context.Context) {
	t := time.NewTicker(a.settings.TickInterval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.tick(ctx)
		}
	}
}

func (a *Agent) persistLoop(ctx context.Context) {
	t := time.NewTicker(persistInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.persist()
		}
	}
}

func (a *Agent) persist() {
	if err := a.saveState(); err != nil {
		a.log.Warnf("Save state: %v", err)
	}
	if err := a.ledger.Save(); err != nil {
		a.log.Warnf("Save reputation: %v", err)
	}
}

// shutdown runs after every loop has stopped; open trades are left to
// time out on the peers' side.
func (a *Agent) shutdown() {
	a.persist()
	a.relay.Disconnect()

	stats := a.statsSnapshot()
	a.mu.Lock()
	ticks := a.tickCount
	a.mu.Unlock()
	a.log.WithFields(logrus.Fields{
		"ticks":     ticks,
		"completed": stats.Completed,
		"earned":    stats.SatsEarned,
		"spent":     stats.TotalSpent(),
	}).Info("Agent stopped")
}

func (a *Agent) postChat(ctx context.Context, line string) {
	ev := &models.Event{Kind: models.KindChat, Content: line}
	if err := a.relay.Publish(ctx, ev); err != nil {
		a.log.Debugf("Chat post failed: %v", err)
		return
	}
	a.log.Infof("[CHAT] %s", line)
}

func (a *Agent) publishIdentity(ctx context.Context) {
	content := models.ProfileContent{
		Name:        a.profile.ID,
		DisplayName: a.profile.DisplayName,
		About:       fmt.Sprintf("Zap Empire %s agent", a.profile.Personality.Name),
		Role:        "user-agent",
		Personality: a.profile.Personality.Name,
	}
	raw, err := models.CompactJSON(content)
	if err != nil {
		a.log.Warnf("Encode profile: %v", err)
		return
	}
	ev := &models.Event{Kind: models.KindProfile, Content: raw}
	if err := a.relay.Publish(ctx, ev); err != nil {
		a.log.Warnf("Publish profile: %v", err)
	}
}

func (a *Agent) publishStatus(ctx context.Context) {
	a.mu.Lock()
	owned := len(a.programs)
	listed := 0
	for _, p := range a.programs {
		if p.Listed {
			listed++
		}
	}
	tick := a.tickCount
	a.mu.Unlock()

	content := models.StatusContent{
		BalanceSats:    a.wallet.Balance(),
		ProgramsOwned:  owned,
		ProgramsListed: listed,
		ActiveTrades:   a.trades.ActiveCount(),
		LastAction:     "tick",
		TickCount:      tick,
		Timestamp:      time.Now().Unix(),
	}
	raw, err := models.CompactJSON(content)
	if err != nil {
		a.log.Warnf("Encode status: %v", err)
		return
	}
	ev := &models.Event{
		Kind:    models.KindAgentStatus,
		Content: raw,
		Tags: []models.Tag{
			{"agent_name", a.profile.ID},
			{"role", "user-agent"},
		},
	}
	if err := a.relay.Publish(ctx, ev); err != nil {
		a.log.Warnf("Publish status: %v", err)
	}
}
