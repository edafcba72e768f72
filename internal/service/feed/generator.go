package feed

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Position is one synthetic open position.
type Position struct {
	Qty      int     `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
	LTP      float64 `json:"ltp"`
}

// Metrics is the frame pushed to dashboard clients.
type Metrics struct {
	Positions    map[string]Position `json:"positions"`
	Sentiment    float64             `json:"sentiment"`
	ActiveOrders int                 `json:"active_orders"`
	PnL          float64             `json:"pnl"`
}

// Generator produces a random walk of bot metrics.
type Generator struct {
	mu        sync.Mutex
	rnd       *rand.Rand
	keys      []string
	positions map[string]Position
	sentiment float64
	orders    int
}

// NewGenerator seeds one position per instrument key.
func NewGenerator(instruments []string, seed int64) *Generator {
	g := &Generator{
		rnd:       rand.New(rand.NewSource(seed)),
		positions: make(map[string]Position, len(instruments)),
	}
	for _, key := range instruments {
		if _, dup := g.positions[key]; dup {
			continue
		}
		price := 100 + g.rnd.Float64()*2900
		g.keys = append(g.keys, key)
		g.positions[key] = Position{
			Qty:      25 * (1 + g.rnd.Intn(4)),
			AvgPrice: round2(price),
			LTP:      round2(price),
		}
	}
	return g
}

// Step advances the walk by one tick and returns the new frame.
func (g *Generator) Step() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sentiment = clamp(g.sentiment+(g.rnd.Float64()-0.5)*0.2, -1, 1)
	for _, key := range g.keys {
		p := g.positions[key]
		p.LTP = round2(p.LTP * (1 + (g.rnd.Float64()-0.5)*0.004))
		g.positions[key] = p
	}
	g.orders = g.rnd.Intn(len(g.positions) + 2)
	return g.snapshotLocked()
}

// Run steps the walk every interval until ctx ends.
func (g *Generator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Step()
		}
	}
}

// Current returns the last frame without advancing.
func (g *Generator) Current() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Generator) snapshotLocked() Metrics {
	m := Metrics{
		Positions:    make(map[string]Position, len(g.positions)),
		Sentiment:    round2(g.sentiment),
		ActiveOrders: g.orders,
	}
	var pnl float64
	for _, key := range g.keys {
		p := g.positions[key]
		m.Positions[key] = p
		pnl += (p.LTP - p.AvgPrice) * float64(p.Qty)
	}
	m.PnL = round2(pnl)
	return m
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
