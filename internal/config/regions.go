package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"ratescraper/internal/provider"
)

// Region is the static scrape setup of one market.
type Region struct {
	Sources []provider.Source `yaml:"sources"`
	// MinPrice and MaxPrice bound plausible rates.
	MinPrice float64 `yaml:"min_price"`
	MaxPrice float64 `yaml:"max_price"`
	// BaseRate centres the synthetic fallback quote.
	BaseRate float64 `yaml:"base_rate"`
}

// BuiltinRegions returns the shipped region table.
func BuiltinRegions() map[string]Region {
	return map[string]Region{
		"AR": {
			Sources: []provider.Source{
				{Name: "ambito", URL: "https://www.ambito.com/contenidos/dolar.html"},
				{Name: "dolarhoy", URL: "https://www.dolarhoy.com"},
				{Name: "cronista", URL: "https://www.cronista.com/MercadosOnline/moneda.html?id=ARSB"},
			},
			MinPrice: 50,
			MaxPrice: 2000,
			BaseRate: 1000,
		},
		"BR": {
			Sources: []provider.Source{
				{Name: "wise", URL: "https://wise.com/es/currency-converter/brl-to-usd-rate"},
				{Name: "nubank", URL: "https://nubank.com.br/taxas-conversao/"},
				{Name: "nomad", URL: "https://www.nomadglobal.com"},
			},
			MinPrice: 1,
			MaxPrice: 20,
			BaseRate: 5.5,
		},
	}
}

type regionsFile struct {
	Regions map[string]Region `yaml:"regions"`
}

// LoadRegions merges the YAML regions file at path over the builtin table.
// Fields left empty in the file keep their builtin values. An empty path
// returns the builtin table.
func LoadRegions(path string) (map[string]Region, error) {
	out := BuiltinRegions()
	if path == "" {
		return out, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("regions file %s not found", path)
		}
		return nil, fmt.Errorf("read regions: %w", err)
	}
	var f regionsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse regions: %w", err)
	}
	for code, r := range f.Regions {
		code = strings.ToUpper(code)
		cur := out[code]
		if len(r.Sources) > 0 {
			cur.Sources = r.Sources
		}
		if r.MinPrice > 0 {
			cur.MinPrice = r.MinPrice
		}
		if r.MaxPrice > 0 {
			cur.MaxPrice = r.MaxPrice
		}
		if r.BaseRate > 0 {
			cur.BaseRate = r.BaseRate
		}
		out[code] = cur
	}
	return out, nil
}

// Resolve returns the region selected by c, with the scrape price range
// overrides applied.
func (c Config) Resolve(regions map[string]Region) (Region, error) {
	r, ok := regions[c.Scrape.Region]
	if !ok {
		return Region{}, fmt.Errorf("unknown region %q", c.Scrape.Region)
	}
	if c.Scrape.MinPrice > 0 {
		r.MinPrice = c.Scrape.MinPrice
	}
	if c.Scrape.MaxPrice > 0 {
		r.MaxPrice = c.Scrape.MaxPrice
	}
	if len(r.Sources) == 0 {
		return Region{}, fmt.Errorf("region %s has no sources", c.Scrape.Region)
	}
	if r.MaxPrice <= r.MinPrice {
		return Region{}, fmt.Errorf("region %s price range [%v, %v] is invalid", c.Scrape.Region, r.MinPrice, r.MaxPrice)
	}
	if r.BaseRate <= 0 {
		r.BaseRate = (r.MinPrice + r.MaxPrice) / 2
	}
	// Synthetic quotes are persisted like scraped ones, so every value the
	// fallback can produce must be plausible for the region.
	lo := r.BaseRate * (1 - c.Fallback.Jitter)
	hi := r.BaseRate * (1 + c.Fallback.Jitter) * (1 + c.Fallback.Spread)
	if lo < r.MinPrice || hi > r.MaxPrice {
		return Region{}, fmt.Errorf("region %s fallback range [%v, %v] leaves price range [%v, %v]",
			c.Scrape.Region, lo, hi, r.MinPrice, r.MaxPrice)
	}
	return r, nil
}
