// Package livefeed coalesces the spot and futures price streams into one
// ordered notifier and refreshes the funding rate on its own slower cadence.
package livefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fundingchart/internal/domain"
	"fundingchart/internal/ports"
)

const subscriptionBuffer = 64

// Manager owns the two streaming connections and fans coalesced updates out
// to subscribers. It is an explicit service with a Connect/Disconnect
// lifecycle, not a process-wide singleton; consumers hold a cancellable
// Subscription handle.
type Manager struct {
	streamer       ports.PriceStreamer
	client         ports.MarketDataClient
	logger         ports.Logger
	symbol         string
	fundingRefresh time.Duration

	onFunding        func(domain.FundingSample)
	onFundingHistory func([]domain.FundingSample)

	mu          sync.Mutex
	subs        map[uuid.UUID]*Subscription
	spot        float64
	futures     float64
	haveSpot    bool
	haveFutures bool
	latest      domain.FundingSample
	haveLatest  bool
	running     bool
	cancel      context.CancelFunc
	spotStop    chan struct{}
	markStop    chan struct{}
}

// Config holds the manager's dependencies and parameters.
type Config struct {
	Streamer       ports.PriceStreamer
	Client         ports.MarketDataClient
	Logger         ports.Logger
	Symbol         string
	FundingRefresh time.Duration // e.g. 5 * time.Minute

	// OnFunding is invoked with each refreshed current funding value.
	OnFunding func(domain.FundingSample)
	// OnFundingHistory is invoked with each refreshed recent-history set.
	OnFundingHistory func([]domain.FundingSample)
}

func New(cfg Config) (*Manager, error) {
	if cfg.Streamer == nil || cfg.Client == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for livefeed manager")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol is required for livefeed manager")
	}
	if cfg.FundingRefresh <= 0 {
		cfg.FundingRefresh = 5 * time.Minute
	}
	return &Manager{
		streamer:         cfg.Streamer,
		client:           cfg.Client,
		logger:           cfg.Logger,
		symbol:           cfg.Symbol,
		fundingRefresh:   cfg.FundingRefresh,
		onFunding:        cfg.OnFunding,
		onFundingHistory: cfg.OnFundingHistory,
		subs:             make(map[uuid.UUID]*Subscription),
	}, nil
}

// Subscription is a consumer's handle on the coalesced update stream.
// Cancel detaches it; the Points channel is closed on cancellation or
// manager disconnect.
type Subscription struct {
	id     uuid.UUID
	ch     chan domain.LivePricePoint
	cancel func(id uuid.UUID)
	once   sync.Once
}

// Points delivers one LivePricePoint per coalesced update. The channel is
// buffered; a consumer that falls far behind loses intermediate points
// rather than stalling the feed.
func (s *Subscription) Points() <-chan domain.LivePricePoint {
	return s.ch
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.cancel(s.id) })
}

// Subscribe registers a new consumer. Subscriptions taken before Connect
// start receiving once both streams have delivered a value.
func (m *Manager) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		ch:     make(chan domain.LivePricePoint, subscriptionBuffer),
		cancel: m.unsubscribe,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.id] = sub
	return sub
}

func (m *Manager) unsubscribe(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(sub.ch)
	}
}

// LatestFunding returns the most recently refreshed current funding value.
func (m *Manager) LatestFunding() (domain.FundingSample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, m.haveLatest
}

// Connect establishes both price streams and starts the funding refresh
// loop. It blocks until the first funding refresh completes so the trailing
// candle never classifies against a zero rate, then returns.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("livefeed manager already connected")
	}
	m.running = true
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)

	spotDone, spotStop, err := m.streamer.StreamSpotPrice(runCtx, m.symbol, m.handleSpot, m.handleStreamError)
	if err != nil {
		cancel()
		m.markStopped()
		return fmt.Errorf("spot stream: %w", err)
	}
	markDone, markStop, err := m.streamer.StreamMarkPrice(runCtx, m.symbol, m.handleMark, m.handleStreamError)
	if err != nil {
		select {
		case spotStop <- struct{}{}:
		default:
		}
		cancel()
		m.markStopped()
		return fmt.Errorf("mark price stream: %w", err)
	}

	m.mu.Lock()
	m.cancel = cancel
	m.spotStop = spotStop
	m.markStop = markStop
	m.mu.Unlock()

	m.refreshFunding(runCtx)

	go m.fundingLoop(runCtx)
	go m.watchStream(runCtx, "spot", spotDone)
	go m.watchStream(runCtx, "futures", markDone)
	return nil
}

// Disconnect tears the manager down: both streams, the funding timer and
// every subscription are cancelled together. A message or refresh that
// completes afterwards is a no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	spotStop, markStop := m.spotStop, m.markStop
	subs := m.subs
	m.subs = make(map[uuid.UUID]*Subscription)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, stop := range []chan struct{}{spotStop, markStop} {
		if stop == nil {
			continue
		}
		select {
		case stop <- struct{}{}:
		default:
		}
	}
	for _, sub := range subs {
		close(sub.ch)
	}
	m.logger.Info(context.Background(), "Livefeed manager disconnected", map[string]interface{}{"symbol": m.symbol})
}

func (m *Manager) markStopped() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *Manager) handleSpot(price float64, ts time.Time) {
	m.mu.Lock()
	m.spot = price
	m.haveSpot = true
	m.mu.Unlock()
	m.publish(ts)
}

func (m *Manager) handleMark(price float64, ts time.Time) {
	m.mu.Lock()
	m.futures = price
	m.haveFutures = true
	m.mu.Unlock()
	m.publish(ts)
}

// publish emits one coalesced point, but only once both streams have
// delivered at least one value and the manager has not been torn down.
func (m *Manager) publish(ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || !m.haveSpot || !m.haveFutures {
		return
	}
	point := domain.LivePricePoint{Spot: m.spot, Futures: m.futures, Timestamp: ts}
	for _, sub := range m.subs {
		select {
		case sub.ch <- point:
		default:
			// Slow consumer: drop rather than stall the feed.
		}
	}
}

func (m *Manager) handleStreamError(err error) {
	m.logger.Warn(context.Background(), "Live stream error reported", map[string]interface{}{
		"symbol": m.symbol,
		"error":  err.Error(),
	})
}

// watchStream logs when a stream goes permanently idle after exhausting its
// reconnect budget. The series stays readable without live updates.
func (m *Manager) watchStream(ctx context.Context, name string, done <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-done:
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn(ctx, "Live stream permanently idle, no further live updates from it", map[string]interface{}{
			"stream": name,
			"symbol": m.symbol,
		})
	}
}

func (m *Manager) fundingLoop(ctx context.Context) {
	ticker := time.NewTicker(m.fundingRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refreshFunding(ctx)
		}
	}
}

// refreshFunding pulls the current funding value and the recent settlement
// history. Failures are logged and skipped; the previous values stay live.
func (m *Manager) refreshFunding(ctx context.Context) {
	sample, err := m.client.GetCurrentFundingRate(ctx, m.symbol)
	if err != nil {
		m.logger.Warn(ctx, "Funding refresh failed, keeping previous value", map[string]interface{}{
			"symbol": m.symbol,
			"error":  err.Error(),
		})
	} else {
		m.mu.Lock()
		active := m.running
		if active {
			m.latest = sample
			m.haveLatest = true
		}
		m.mu.Unlock()
		if active && m.onFunding != nil {
			m.onFunding(sample)
		}
	}

	history, err := m.client.GetFundingRateHistory(ctx, m.symbol, 100)
	if err != nil {
		m.logger.Warn(ctx, "Funding history refresh failed", map[string]interface{}{
			"symbol": m.symbol,
			"error":  err.Error(),
		})
		return
	}
	m.mu.Lock()
	active := m.running
	m.mu.Unlock()
	if active && m.onFundingHistory != nil {
		m.onFundingHistory(history)
	}
}
