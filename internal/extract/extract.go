// Package extract turns page text into a buy/sell rate pair using numeric
// heuristics. It knows nothing about any specific site layout.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"ratescraper/internal/provider"
)

// FailureReason is the outcome error reported when no plausible number is found.
const FailureReason = "could not parse numeric rates"

var tokenRE = regexp.MustCompile(`\d+(?:[.,]\d+)+`)

// Extractor keeps numbers inside [Min, Max].
type Extractor struct {
	Min float64
	Max float64
}

func New(min, max float64) Extractor {
	return Extractor{Min: min, Max: max}
}

// Extract picks the first two plausible numbers of the page text as buy and
// sell. A single number is used for both. When the text yields nothing the
// meta values are scanned and the first plausible number is used for both.
func (e Extractor) Extract(p provider.Page) (provider.Rates, bool) {
	vals := e.Plausible(p.Text, 2)
	switch len(vals) {
	case 0:
	case 1:
		return provider.Rates{BuyPrice: vals[0], SellPrice: vals[0]}, true
	default:
		return provider.Rates{BuyPrice: vals[0], SellPrice: vals[1]}, true
	}
	for _, m := range p.Meta {
		if v := e.Plausible(m, 1); len(v) == 1 {
			return provider.Rates{BuyPrice: v[0], SellPrice: v[0]}, true
		}
	}
	return provider.Rates{}, false
}

// Plausible returns up to limit in-range numbers from text, in order of
// appearance. limit <= 0 means no limit.
func (e Extractor) Plausible(text string, limit int) []float64 {
	var out []float64
	for _, tok := range Tokens(text) {
		for _, v := range Readings(tok) {
			if e.InRange(v) {
				out = append(out, v)
				break
			}
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (e Extractor) InRange(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= e.Min && v <= e.Max
}

// Tokens returns every number-like token that contains a separator.
func Tokens(text string) []string {
	return tokenRE.FindAllString(text, -1)
}

// Readings returns the candidate values of a token, most likely first.
//
// With both '.' and ',' present the last one is the decimal separator.
// A repeated separator with three-digit groups is a thousands separator.
// A single separator followed by exactly three digits is ambiguous and
// yields the thousands reading before the decimal one.
func Readings(tok string) []float64 {
	lastDot := strings.LastIndexByte(tok, '.')
	lastComma := strings.LastIndexByte(tok, ',')

	if lastDot >= 0 && lastComma >= 0 {
		dec, thousands := ".", ","
		if lastComma > lastDot {
			dec, thousands = ",", "."
		}
		s := strings.ReplaceAll(tok, thousands, "")
		if strings.Count(s, dec) != 1 {
			return nil
		}
		return parse(strings.Replace(s, dec, ".", 1))
	}

	sep := "."
	if lastComma >= 0 {
		sep = ","
	}
	parts := strings.Split(tok, sep)
	if len(parts) > 2 {
		for _, p := range parts[1:] {
			if len(p) != 3 {
				return nil
			}
		}
		return parse(strings.Join(parts, ""))
	}
	decimal := parts[0] + "." + parts[1]
	if len(parts[1]) == 3 {
		return append(parse(parts[0]+parts[1]), parse(decimal)...)
	}
	return parse(decimal)
}

func parse(s string) []float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return []float64{v}
}
