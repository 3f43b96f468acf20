package aggregate

import (
	"errors"
	"testing"

	"ratescraper/internal/provider"
)

func TestMean_TwoSources(t *testing.T) {
	in := []Priced{
		{Source: "s1", BuyPrice: 100, SellPrice: 102},
		{Source: "s2", BuyPrice: 102, SellPrice: 104},
	}

	got, err := Mean(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AverageBuyPrice != 101 || got.AverageSellPrice != 103 || got.Count != 2 {
		t.Fatalf("unexpected average: %+v", got)
	}
}

func TestDeviation_RoundedToSixPlaces(t *testing.T) {
	in := []Priced{
		{Source: "s1", BuyPrice: 100, SellPrice: 102},
		{Source: "s2", BuyPrice: 102, SellPrice: 104},
	}

	got, err := Deviation(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Slippage) != 2 {
		t.Fatalf("want 2 entries, got %d", len(got.Slippage))
	}
	s1 := got.Slippage[0]
	if s1.Source != "s1" || s1.BuyPriceSlippage != -0.009901 || s1.SellPriceSlippage != -0.009709 {
		t.Fatalf("unexpected s1: %+v", s1)
	}
	s2 := got.Slippage[1]
	if s2.BuyPriceSlippage != 0.009901 || s2.SellPriceSlippage != 0.009709 {
		t.Fatalf("unexpected s2: %+v", s2)
	}
	if got.AverageBuyPrice != 101 || got.AverageSellPrice != 103 {
		t.Fatalf("unexpected averages: %+v", got)
	}
}

func TestEmptyInput_ReturnsErrNoQuotes(t *testing.T) {
	if _, err := Mean(nil); !errors.Is(err, ErrNoQuotes) {
		t.Fatalf("Mean: want ErrNoQuotes, got %v", err)
	}
	if _, err := Deviation([]Priced{}); !errors.Is(err, ErrNoQuotes) {
		t.Fatalf("Deviation: want ErrNoQuotes, got %v", err)
	}
}

func TestSuccessful_SkipsFailures(t *testing.T) {
	in := []provider.Outcome{
		{OK: true, Source: "a", Data: &provider.Rates{BuyPrice: 1, SellPrice: 2}},
		{OK: false, Source: "b", Error: "could not parse numeric rates"},
		{OK: true, Source: "c"}, // malformed: ok without data
		{OK: true, Source: "d", Data: &provider.Rates{BuyPrice: 3, SellPrice: 4}},
	}

	got := Successful(in)
	if len(got) != 2 || got[0].Source != "a" || got[1].Source != "d" {
		t.Fatalf("unexpected: %+v", got)
	}
	if got[1].BuyPrice != 3 || got[1].SellPrice != 4 {
		t.Fatalf("unexpected prices: %+v", got[1])
	}
}

func TestMean_SingleSourceHasZeroSlippage(t *testing.T) {
	got, err := Deviation([]Priced{{Source: "only", BuyPrice: 5.43, SellPrice: 5.51}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Slippage[0].BuyPriceSlippage != 0 || got.Slippage[0].SellPriceSlippage != 0 {
		t.Fatalf("unexpected: %+v", got.Slippage[0])
	}
	if got.AverageBuyPrice != 5.43 {
		t.Fatalf("unexpected mean: %v", got.AverageBuyPrice)
	}
}
