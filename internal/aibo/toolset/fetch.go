package toolset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher retrieves the raw document at a URL. A failed fetch is an
// error; the pipeline turns it into a failure-context result. There are
// no retries at this layer.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

const (
	fetchTimeout  = 30 * time.Second
	fetchMaxBytes = 2 << 20 // 2 MiB of raw document is plenty for a summary
	userAgent     = "aibo/1.0 (+https://github.com/aibo-bot/aibo)"
)

// HTTPFetcher is the production Fetcher over net/http.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a Fetcher with a bounded timeout and redirect
// budget.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

// Fetch downloads the document at rawURL. Non-2xx statuses and empty
// bodies are errors — the caller never sees a half-useful document.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: empty body", rawURL)
	}
	return body, nil
}

// maxSanitizedChars bounds the text handed to the summarization stage so a
// single oversized page cannot blow the prompt.
const maxSanitizedChars = 15000

// sanitize strips markup from an HTML document, returning the plain text
// content and the page title. The title is recovered independently of the
// main extraction: a page without a <title> still yields its text with an
// empty title.
func sanitize(raw []byte) (text, title string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return "", "", fmt.Errorf("parse HTML: %w", err)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, nav, footer, header, aside, iframe, noscript").Remove()

	var b strings.Builder
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, article, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		// Skip containers whose text is already captured by a child match.
		if s.Children().Is("p, li, h1, h2, h3, h4, h5, h6") {
			return
		}
		if t := strings.TrimSpace(s.Text()); t != "" {
			b.WriteString(t)
			b.WriteString("\n")
		}
	})

	text = strings.TrimSpace(b.String())
	if text == "" {
		// Page without any structural elements: fall back to the body text.
		text = strings.TrimSpace(collapseWhitespace(doc.Find("body").Text()))
	}
	if len(text) > maxSanitizedChars {
		// Back up to a rune boundary so the cut never leaves invalid UTF-8.
		cut := maxSanitizedChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text, title, nil
}

// collapseWhitespace squeezes runs of whitespace into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
