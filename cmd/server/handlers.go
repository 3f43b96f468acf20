package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"ratescraper/internal/aggregate"
	"ratescraper/internal/quotes"
)

const (
	defaultHistory = 10
	maxHistory     = 100
)

var endpoints = []string{"/quotes", "/average", "/slippage", "/health", "/history", "/metrics"}

type errorResponse struct {
	Error string `json:"error"`
}

type indexResponse struct {
	Message   string   `json:"message"`
	Region    string   `json:"region"`
	Endpoints []string `json:"endpoints"`
	Timestamp string   `json:"timestamp"`
}

func newHandler(svc *quotes.Service, reg prometheus.Gatherer, ttl, timeout time.Duration) http.Handler {
	withTimeout := func(r *http.Request) (context.Context, context.CancelFunc) {
		if timeout <= 0 {
			return context.WithCancel(r.Context())
		}
		return context.WithTimeout(r.Context(), timeout)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, indexResponse{
			Message:   "Currency quote scraper",
			Region:    svc.Region(),
			Endpoints: endpoints,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /quotes", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := withTimeout(r)
		defer cancel()
		writeJSON(w, http.StatusOK, svc.Quotes(ctx, ttl))
	})
	mux.HandleFunc("GET /average", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := withTimeout(r)
		defer cancel()
		avg, err := svc.Average(ctx, ttl)
		if err != nil {
			writeStatsError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, avg)
	})
	mux.HandleFunc("GET /slippage", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := withTimeout(r)
		defer cancel()
		slip, err := svc.Slippage(ctx, ttl)
		if err != nil {
			writeStatsError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, slip)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health(r.Context()))
	})
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		qs, err := svc.Recent(r.Context(), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, qs)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{DisableCompression: true}))

	return withJSONHeaders(withGzip(recoverPanic(mux)))
}

func parseLimit(v string) (int, error) {
	if strings.TrimSpace(v) == "" {
		return defaultHistory, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxHistory {
		n = maxHistory
	}
	return n, nil
}

func writeStatsError(w http.ResponseWriter, err error) {
	if errors.Is(err, aggregate.ErrNoQuotes) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "No successful quotes available"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		// Basic CORS for browser usage; adjust as needed.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		// Prefer best speed to reduce CPU usage since payloads are JSON
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
