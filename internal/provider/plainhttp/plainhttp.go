// Package plainhttp fetches pages with a single GET and no script execution.
package plainhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"ratescraper/internal/httpx"
	"ratescraper/internal/provider"
)

const Name = "http"

// Fetcher downloads a page and reduces it to visible text and meta contents.
type Fetcher struct {
	Client       *httpx.Client
	SnippetChars int
}

func New(client *httpx.Client, snippetChars int) *Fetcher {
	return &Fetcher{Client: client, SnippetChars: snippetChars}
}

func (f *Fetcher) Name() string { return Name }

func (f *Fetcher) Fetch(ctx context.Context, url string) (provider.Page, error) {
	body, err := f.Client.Get(ctx, url)
	if err != nil {
		return provider.Page{}, &provider.FetchError{Kind: kindOf(ctx, err), URL: url, Err: err}
	}
	page, err := Parse(body, f.SnippetChars)
	if err != nil {
		return provider.Page{}, &provider.FetchError{Kind: provider.KindFetch, URL: url, Err: err}
	}
	return page, nil
}

// Open returns the fetcher itself; plain HTTP needs no per-batch setup.
func (f *Fetcher) Open(ctx context.Context) (provider.Session, error) {
	if f.Client == nil {
		return nil, fmt.Errorf("%w: no http client", provider.ErrUnavailable)
	}
	return f, nil
}

func (f *Fetcher) Close() error { return nil }

func kindOf(ctx context.Context, err error) provider.ErrorKind {
	var se *httpx.StatusError
	switch {
	case errors.As(err, &se):
		return provider.KindStatus
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return provider.KindTimeout
	}
	// http.Client timeouts surface as url.Error with Timeout() == true.
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return provider.KindTimeout
	}
	return provider.KindFetch
}

// Parse extracts whitespace-collapsed visible text, capped at max runes
// (max <= 0 means unlimited), and the content attribute of every meta tag.
func Parse(body []byte, max int) (provider.Page, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return provider.Page{}, fmt.Errorf("parse html: %w", err)
	}
	var (
		sb   strings.Builder
		meta []string
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Meta:
				for _, a := range n.Attr {
					if a.Key == "content" && strings.TrimSpace(a.Val) != "" {
						meta = append(meta, a.Val)
					}
				}
			}
		case html.TextNode:
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return provider.Page{Text: Truncate(sb.String(), max), Meta: meta}, nil
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
