package datafeed

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sync"
	"time"

	"ats-dashboard-feed/pkg/models"
)

// DefaultSymbols are the instruments the simulator streams by default.
var DefaultSymbols = []string{
	"NSE_INDEX|Nifty 50",
	"NSE_INDEX|Nifty Bank",
	"NSE_EQ|INE002A01018",
}

const (
	// strikeStep is the option strike spacing used for the simulated chain.
	strikeStep = 50
	tradeQty   = 50
	takeProfit = 1.006
	stopLoss   = 0.997

	// maxClosedTrades bounds the closed trade history kept per symbol.
	maxClosedTrades = 20
)

// session tracks one symbol's simulated day: its range and a single long scalp.
type session struct {
	open, high, low, spot float64
	entry                 float64
	entryTime             time.Time
	closed                []models.ClosedTrade
}

// MockDataFeed simulates dashboard frames with a random walk per symbol.
type MockDataFeed struct {
	symbols   []string
	sessions  map[string]*session
	mu        sync.RWMutex
	frameChan chan []byte
	stopChan  chan struct{}
	running   bool
	stopped   bool
	tickRate  time.Duration
	rng       *rand.Rand
	now       func() time.Time
}

// NewMockDataFeed creates a new simulated dashboard feed for the given symbols
func NewMockDataFeed(symbols []string, tickRate time.Duration) *MockDataFeed {
	initialPrices := map[string]float64{
		"NSE_INDEX|Nifty 50":   24500.00,
		"NSE_INDEX|Nifty Bank": 52000.00,
		"NSE_EQ|INE002A01018":  2900.00,
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	sessions := make(map[string]*session)
	for _, symbol := range symbols {
		price, exists := initialPrices[symbol]
		if !exists {
			price = 100.00 + rng.Float64()*900.00
		}
		sessions[symbol] = &session{open: price, high: price, low: price, spot: price, entry: price, entryTime: time.Now()}
	}

	return &MockDataFeed{
		symbols:   symbols,
		sessions:  sessions,
		frameChan: make(chan []byte, 1000),
		stopChan:  make(chan struct{}),
		tickRate:  tickRate,
		rng:       rng,
		now:       time.Now,
	}
}

func (m *MockDataFeed) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running || m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	go m.generateFrames(ctx)
	return nil
}

func (m *MockDataFeed) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	m.stopped = true
	m.running = false
	close(m.stopChan)
}

// Frames returns the channel of encoded dashboard frames.
func (m *MockDataFeed) Frames() <-chan []byte {
	return m.frameChan
}

func (m *MockDataFeed) GetCurrentPrice(symbol string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[symbol]
	if !exists {
		return 0, false
	}
	return s.spot, true
}

func (m *MockDataFeed) generateFrames(ctx context.Context) {
	ticker := time.NewTicker(m.tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			frame, err := m.NextFrame()
			if err != nil || frame == nil {
				continue
			}
			select {
			case m.frameChan <- frame:
			default:
			}
		}
	}
}

// NextFrame advances a random symbol and encodes its dashboard view.
func (m *MockDataFeed) NextFrame() ([]byte, error) {
	view := m.NextView()
	if view == nil {
		return nil, nil
	}
	return json.Marshal(view)
}

func (m *MockDataFeed) NextView() *models.DashboardView {
	if len(m.symbols) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	symbol := m.symbols[m.rng.Intn(len(m.symbols))]
	s := m.sessions[symbol]

	// Index moves are small: between 0.01% and 0.1% per tick.
	change := s.spot * (0.0001 + m.rng.Float64()*0.0009)
	if m.rng.Float64() < 0.5 {
		change = -change
	}
	s.spot = math.Max(0.05, s.spot+change)
	s.high = math.Max(s.high, s.spot)
	s.low = math.Min(s.low, s.spot)

	if s.spot >= s.entry*takeProfit || s.spot <= s.entry*stopLoss {
		reason := "TP_HIT"
		if s.spot < s.entry {
			reason = "SL_HIT"
		}
		now := m.now()
		s.closed = append(s.closed, models.ClosedTrade{
			Symbol:    symbol,
			Side:      "BUY",
			Entry:     round2(s.entry),
			Exit:      round2(s.spot),
			PnL:       round2(models.TradePnL("BUY", s.entry, s.spot, tradeQty)),
			EntryTime: s.entryTime.UnixMilli(),
			ExitTime:  now.UnixMilli(),
			Reason:    reason,
		})
		if len(s.closed) > maxClosedTrades {
			s.closed = append([]models.ClosedTrade(nil), s.closed[len(s.closed)-maxClosedTrades:]...)
		}
		s.entry = s.spot
		s.entryTime = now
	}

	return m.buildView(symbol, s)
}

func (m *MockDataFeed) buildView(symbol string, s *session) *models.DashboardView {
	now := m.now()
	rangeWidth := s.high - s.low
	poc := (s.high + s.low) / 2

	view := &models.DashboardView{
		Timestamp: now.UnixMilli(),
		Symbol:    symbol,
		Spot:      round2(s.spot),
		Future:    round2(s.spot * 1.002),
		Basis:     round2(s.spot * 0.002),
		PCR:       round2(0.7 + m.rng.Float64()*0.6),
		OHLC: &models.OHLC{
			Open:  round2(s.open),
			High:  round2(s.high),
			Low:   round2(s.low),
			Close: round2(s.spot),
		},
		AuctionProfile: &models.AuctionProfile{
			VAH: round2(poc + 0.35*rangeWidth),
			VAL: round2(poc - 0.35*rangeWidth),
			POC: round2(poc),
		},
		WeightedDelta: round2((s.spot - s.open) / s.open * 1000),
		AuctionState:  auctionState(s.spot, poc, rangeWidth),
		Alerts:        []string{},
		ThetaGuard:    1200,
	}

	atm := math.Round(s.spot/strikeStep) * strikeStep
	for i := -2; i <= 2; i++ {
		strike := int(atm) + i*strikeStep
		view.OptionChain = append(view.OptionChain,
			models.OptionQuote{Strike: strike, Type: "CE", LTP: round2(math.Max(0.05, s.spot-float64(strike)+80)), Sentiment: "NEUTRAL"},
			models.OptionQuote{Strike: strike, Type: "PE", LTP: round2(math.Max(0.05, float64(strike)-s.spot+80)), Sentiment: "NEUTRAL"},
		)
	}

	view.ScalpSignals = []models.ScalpSignal{{
		Symbol:     symbol,
		Gate:       "VWAP_REVERSION",
		Entry:      round2(s.entry),
		StopLoss:   round2(s.entry * stopLoss),
		TakeProfit: round2(s.entry * takeProfit),
		Status:     "ACTIVE",
	}}
	view.ActiveTrades = []models.ActiveTrade{{
		Symbol:    symbol,
		Side:      "BUY",
		Entry:     round2(s.entry),
		LTP:       round2(s.spot),
		Qty:       tradeQty,
		PnL:       round2(models.TradePnL("BUY", s.entry, s.spot, tradeQty)),
		EntryTime: s.entryTime.UnixMilli(),
		Reason:    "ALGO_BUY",
	}}
	view.ClosedTrades = append([]models.ClosedTrade(nil), s.closed...)

	return view
}

func auctionState(spot, poc, width float64) string {
	switch {
	case width == 0:
		return "ROTATION"
	case spot > poc+0.35*width:
		return "INITIATIVE_BUY"
	case spot < poc-0.35*width:
		return "INITIATIVE_SELL"
	default:
		return "ROTATION"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
