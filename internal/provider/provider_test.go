package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQuotesFromBatchKeepsOnlyOK(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)
	b := Batch{
		Origin: OriginFallback,
		Outcomes: []Outcome{
			Succeeded(Source{Name: "fallback", URL: "fallback-mock"}, Rates{BuyPrice: 1000, SellPrice: 1020}, ""),
			Failed(Source{Name: "x", URL: "https://x"}, KindParse, "could not parse numeric rates", "raw"),
			{OK: true, Source: "https://broken"},
		},
	}

	qs := QuotesFromBatch(b, at)

	require.Len(t, qs, 1)
	require.Equal(t, "fallback-mock", qs[0].Source)
	require.Equal(t, OriginFallback, qs[0].Origin)
	require.True(t, qs[0].FetchedAt.Equal(at))
	require.Len(t, qs[0].ID, 36)
	require.Equal(t, 1, b.Successful())
}

func TestQuoteValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Quote{BuyPrice: 1, SellPrice: 2}.Validate())
	require.Error(t, Quote{BuyPrice: math.NaN(), SellPrice: 2}.Validate())
	require.Error(t, Quote{BuyPrice: 1, SellPrice: math.Inf(-1)}.Validate())
	require.Error(t, Quote{BuyPrice: -1, SellPrice: 2}.Validate())
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	fe := &FetchError{Kind: KindStatus, URL: "https://x", Err: errors.New("unexpected status 500")}
	require.Equal(t, KindStatus, KindOf(fmt.Errorf("wrapped: %w", fe)))
	require.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	require.Equal(t, KindFetch, KindOf(errors.New("dns")))
	require.Equal(t, "status https://x: unexpected status 500", fe.Error())
}
