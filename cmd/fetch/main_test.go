package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"ratescraper/internal/provider"
)

func TestPrintBatch(t *testing.T) {
	color.NoColor = true

	b := provider.Batch{
		Origin:    provider.OriginScrape,
		Mechanism: "http",
		Outcomes: []provider.Outcome{
			provider.Succeeded(provider.Source{Name: "wise", URL: "https://wise"}, provider.Rates{BuyPrice: 5.4, SellPrice: 5.5}, ""),
			provider.Failed(provider.Source{Name: "nomad", URL: "https://nomad"}, provider.KindParse, "could not parse numeric rates", ""),
		},
	}
	var buf bytes.Buffer
	printBatch(&buf, "BR", b)

	out := buf.String()
	for _, want := range []string{"region=BR", "OK  wise", "ERR nomad", "could not parse numeric rates", "average buy=5.400000 sell=5.500000 (1 sources)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintBatchFallbackWarns(t *testing.T) {
	color.NoColor = true

	b := provider.Batch{
		Origin: provider.OriginFallback,
		Outcomes: []provider.Outcome{
			provider.Succeeded(provider.Source{Name: "fallback", URL: "fallback-mock"}, provider.Rates{BuyPrice: 1000, SellPrice: 1020}, ""),
		},
	}
	var buf bytes.Buffer
	printBatch(&buf, "AR", b)

	if !strings.Contains(buf.String(), "synthetic data") {
		t.Fatalf("missing fallback warning:\n%s", buf.String())
	}
}
