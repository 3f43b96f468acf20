package provider

//go:generate mockgen -destination=providermock/mock_provider.go -package=providermock -source=provider.go

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable is returned by Mechanism.Open when the acquisition
// mechanism cannot be started at all (for example no browser binary).
var ErrUnavailable = errors.New("acquisition mechanism unavailable")

// Source is a named page that publishes a rate for the configured region.
type Source struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Rates is a buy/sell pair in quote currency per unit.
type Rates struct {
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`
}

// ErrorKind classifies a per-source failure.
type ErrorKind string

const (
	KindFetch   ErrorKind = "fetch"
	KindTimeout ErrorKind = "timeout"
	KindStatus  ErrorKind = "status"
	KindParse   ErrorKind = "parse"
	KindPanic   ErrorKind = "panic"
)

// Outcome is the result of scraping one source. Data is set iff OK.
type Outcome struct {
	OK     bool      `json:"ok"`
	Source string    `json:"source"`
	Name   string    `json:"name,omitempty"`
	Data   *Rates    `json:"data,omitempty"`
	Error  string    `json:"error,omitempty"`
	Kind   ErrorKind `json:"error_kind,omitempty"`
	Raw    string    `json:"raw,omitempty"`
}

// Succeeded builds an OK outcome for src.
func Succeeded(src Source, r Rates, raw string) Outcome {
	return Outcome{OK: true, Source: src.URL, Name: src.Name, Data: &r, Raw: raw}
}

// Failed builds a failed outcome for src.
func Failed(src Source, kind ErrorKind, reason, raw string) Outcome {
	return Outcome{Source: src.URL, Name: src.Name, Error: reason, Kind: kind, Raw: raw}
}

// Origin tells whether a batch came from real pages or the synthetic fallback.
type Origin string

const (
	OriginScrape   Origin = "scrape"
	OriginFallback Origin = "fallback"
)

// Batch is the complete result of one scrape run.
type Batch struct {
	Outcomes  []Outcome `json:"outcomes"`
	Origin    Origin    `json:"origin"`
	Mechanism string    `json:"mechanism"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Successful returns the number of OK outcomes.
func (b Batch) Successful() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.OK && o.Data != nil {
			n++
		}
	}
	return n
}

// Quote is a persisted record of one successful outcome.
type Quote struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Name      string    `json:"name,omitempty"`
	Origin    Origin    `json:"origin"`
	BuyPrice  float64   `json:"buy_price"`
	SellPrice float64   `json:"sell_price"`
	FetchedAt time.Time `json:"fetched_at"`
	Raw       string    `json:"raw,omitempty"`
}

// Validate rejects quotes whose prices are not finite and positive.
func (q Quote) Validate() error {
	for _, p := range [...]float64{q.BuyPrice, q.SellPrice} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return fmt.Errorf("quote %s from %s: invalid price %v", q.ID, q.Source, p)
		}
	}
	return nil
}

// QuotesFromBatch turns every OK outcome of b into a Quote stamped with at.
func QuotesFromBatch(b Batch, at time.Time) []Quote {
	out := make([]Quote, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		if !o.OK || o.Data == nil {
			continue
		}
		out = append(out, Quote{
			ID:        uuid.NewString(),
			Source:    o.Source,
			Name:      o.Name,
			Origin:    b.Origin,
			BuyPrice:  o.Data.BuyPrice,
			SellPrice: o.Data.SellPrice,
			FetchedAt: at,
			Raw:       o.Raw,
		})
	}
	return out
}

// Page is a bounded snapshot of a rendered or downloaded page.
type Page struct {
	Text string
	Meta []string
}

// Fetcher retrieves a page snapshot for a URL.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, url string) (Page, error)
}

// Session is an isolated browsing handle shared by one batch. It must be
// closed when the batch is done.
type Session interface {
	Fetcher
	Close() error
}

// Mechanism opens sessions. Open returns an error wrapping ErrUnavailable
// when the mechanism cannot run in this environment.
type Mechanism interface {
	Name() string
	Open(ctx context.Context) (Session, error)
}

// FetchError carries the failure kind of a single fetch.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf maps err to a failure kind.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindFetch
}
