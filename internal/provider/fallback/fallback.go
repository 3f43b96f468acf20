// Package fallback produces a synthetic quote when no acquisition mechanism
// can run at all.
package fallback

import (
	"math/rand/v2"
	"sync"

	"ratescraper/internal/provider"
)

const (
	SourceName = "fallback-mock"
	Name       = "fallback"
)

// Provider generates one plausible outcome around a region base rate.
type Provider struct {
	BaseRate float64
	// Jitter is the maximum relative deviation of buy from BaseRate.
	Jitter float64
	// Spread is the relative markup of sell over buy.
	Spread float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(baseRate, jitter, spread float64, rnd *rand.Rand) *Provider {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Provider{BaseRate: baseRate, Jitter: jitter, Spread: spread, rnd: rnd}
}

// Outcome returns an OK outcome with buy in BaseRate*(1±Jitter) and
// sell = buy*(1+Spread).
func (p *Provider) Outcome() provider.Outcome {
	p.mu.Lock()
	u := p.rnd.Float64()
	p.mu.Unlock()

	buy := p.BaseRate * (1 + p.Jitter*(2*u-1))
	sell := buy * (1 + p.Spread)
	return provider.Succeeded(
		provider.Source{Name: Name, URL: SourceName},
		provider.Rates{BuyPrice: buy, SellPrice: sell},
		"",
	)
}
