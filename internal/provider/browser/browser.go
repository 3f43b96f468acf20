// Package browser renders pages in headless Chrome so script-built rate
// widgets are present before the text is read.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"ratescraper/internal/provider"
)

const Name = "browser"

const (
	textJS = `(() => { const b = document.body; return b ? b.innerText.slice(0, %d) : ""; })()`
	metaJS = `Array.from(document.querySelectorAll("meta[content]")).map(m => m.getAttribute("content"))`
)

type Config struct {
	ExecPath     string
	UserAgent    string
	SnippetChars int
	// IdleTimeout bounds the wait for network quiescence after load.
	IdleTimeout time.Duration
	// StartTimeout bounds launching the browser process.
	StartTimeout time.Duration
}

// Mechanism launches one browser per batch.
type Mechanism struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Mechanism {
	if cfg.SnippetChars <= 0 {
		cfg.SnippetChars = 3000
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Second
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mechanism{cfg: cfg, logger: logger}
}

func (m *Mechanism) Name() string { return Name }

// Open starts a headless browser. Any failure to start is reported as
// provider.ErrUnavailable so the caller can try the next mechanism.
func (m *Mechanism) Open(ctx context.Context) (provider.Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if m.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
	}
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}

	// Cancelling ctx also kills the browser process.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			m.logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)
	closeAll := func() {
		cancelBrowser()
		cancelAlloc()
	}

	// The first Run allocates the browser and binds it to the context it is
	// given, so the start timeout is enforced from outside.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	t := time.NewTimer(m.cfg.StartTimeout)
	defer t.Stop()

	var err error
	select {
	case err = <-started:
	case <-t.C:
		err = fmt.Errorf("no response after %s", m.cfg.StartTimeout)
	}
	if err != nil {
		closeAll()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: start browser: %v", provider.ErrUnavailable, err)
	}
	return &session{browserCtx: browserCtx, close: closeAll, cfg: m.cfg}, nil
}

type session struct {
	browserCtx context.Context
	close      func()
	cfg        Config
}

func (s *session) Name() string { return Name }

// Fetch renders url in a fresh tab. The tab is closed on every return path.
func (s *session) Fetch(ctx context.Context, url string) (provider.Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	// Tie the tab to the caller's deadline as well as the browser lifetime.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	var p provider.Page
	err := chromedp.Run(tabCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			t := time.NewTimer(s.cfg.IdleTimeout)
			defer t.Stop()
			select {
			case <-idle:
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}),
		chromedp.Evaluate(fmt.Sprintf(textJS, s.cfg.SnippetChars), &p.Text),
		chromedp.Evaluate(metaJS, &p.Meta),
	)
	if err != nil {
		kind := provider.KindFetch
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			kind = provider.KindTimeout
		}
		return provider.Page{}, &provider.FetchError{Kind: kind, URL: url, Err: err}
	}
	return p, nil
}

func (s *session) Close() error {
	s.close()
	return nil
}
