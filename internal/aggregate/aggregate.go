// Package aggregate computes cross-source statistics over a batch.
package aggregate

import (
	"errors"

	"github.com/shopspring/decimal"
	"ratescraper/internal/provider"
)

// Places is the number of decimals reported.
const Places = 6

var ErrNoQuotes = errors.New("no successful quotes available")

// Priced is one source's buy/sell pair.
type Priced struct {
	Source    string
	BuyPrice  float64
	SellPrice float64
}

type Average struct {
	AverageBuyPrice  float64 `json:"average_buy_price"`
	AverageSellPrice float64 `json:"average_sell_price"`
	Count            int     `json:"count"`
}

type SourceSlippage struct {
	Source            string  `json:"source"`
	BuyPriceSlippage  float64 `json:"buy_price_slippage"`
	SellPriceSlippage float64 `json:"sell_price_slippage"`
}

type Slippage struct {
	AverageBuyPrice  float64          `json:"average_buy_price"`
	AverageSellPrice float64          `json:"average_sell_price"`
	Slippage         []SourceSlippage `json:"slippage"`
}

// Successful keeps the OK outcomes, in order.
func Successful(outcomes []provider.Outcome) []Priced {
	out := make([]Priced, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.OK || o.Data == nil {
			continue
		}
		out = append(out, Priced{Source: o.Source, BuyPrice: o.Data.BuyPrice, SellPrice: o.Data.SellPrice})
	}
	return out
}

// Mean returns the arithmetic mean of buy and sell prices.
func Mean(in []Priced) (Average, error) {
	buy, sell, err := means(in)
	if err != nil {
		return Average{}, err
	}
	return Average{
		AverageBuyPrice:  round(buy),
		AverageSellPrice: round(sell),
		Count:            len(in),
	}, nil
}

// Deviation returns the means and, per source, (price - mean) / mean.
func Deviation(in []Priced) (Slippage, error) {
	buy, sell, err := means(in)
	if err != nil {
		return Slippage{}, err
	}
	out := Slippage{
		AverageBuyPrice:  round(buy),
		AverageSellPrice: round(sell),
		Slippage:         make([]SourceSlippage, 0, len(in)),
	}
	for _, p := range in {
		out.Slippage = append(out.Slippage, SourceSlippage{
			Source:            p.Source,
			BuyPriceSlippage:  round(relative(p.BuyPrice, buy)),
			SellPriceSlippage: round(relative(p.SellPrice, sell)),
		})
	}
	return out, nil
}

func means(in []Priced) (buy, sell decimal.Decimal, err error) {
	if len(in) == 0 {
		return decimal.Zero, decimal.Zero, ErrNoQuotes
	}
	for _, p := range in {
		buy = buy.Add(decimal.NewFromFloat(p.BuyPrice))
		sell = sell.Add(decimal.NewFromFloat(p.SellPrice))
	}
	n := decimal.NewFromInt(int64(len(in)))
	return buy.Div(n), sell.Div(n), nil
}

func relative(price float64, mean decimal.Decimal) decimal.Decimal {
	if mean.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(price).Sub(mean).Div(mean)
}

func round(d decimal.Decimal) float64 {
	return d.Round(Places).InexactFloat64()
}
