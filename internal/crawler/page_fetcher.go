package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/IliaW/site-scrape-runner/config"
	"github.com/IliaW/site-scrape-runner/internal/settings"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"
)

// FetchError is returned when a page can't be turned into a document: the status code is not in the allowed
// set, the request failed, or no header profile exists for the page's browser.
type FetchError struct {
	URL        string
	StatusCode int // zero when no response was received
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher turns a URL into a parsed document.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string, allowed settings.AllowedSet) (*goquery.Document, int, error)
}

// PageFetcher issues one synchronous GET per call. It never retries and keeps no response cache.
type PageFetcher struct {
	cfg *config.FetcherConfig
	log *slog.Logger
}

func NewPageFetcher(cfg *config.FetcherConfig, log *slog.Logger) *PageFetcher {
	if cfg == nil {
		cfg = &config.FetcherConfig{}
	}
	return &PageFetcher{cfg: cfg, log: log}
}

// Fetch returns the parsed document and the response status code.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string, headers map[string]string,
	allowed settings.AllowedSet) (*goquery.Document, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, &FetchError{URL: pageURL, Reason: "cancelled", Err: err}
	}

	c := colly.NewCollector()
	c.ParseHTTPErrorResponse = true // the allowed set decides, not colly
	c.AllowURLRevisit = true
	if f.cfg.RequestTimeout > 0 {
		c.SetRequestTimeout(f.cfg.RequestTimeout)
	}
	c.MaxBodySize = max(f.cfg.MaxBodySize, 0) // zero reads the whole body
	if ua, ok := headers["User-Agent"]; ok {
		c.UserAgent = ua
	}

	c.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})

	var (
		statusCode int
		body       []byte
		finalURL   *url.URL
	)
	c.OnResponse(func(resp *colly.Response) {
		statusCode = resp.StatusCode
		body = resp.Body
		finalURL = resp.Request.URL
	})

	f.log.Debug("performing request.", slog.String("url", pageURL))
	start := time.Now()
	if err := c.Visit(pageURL); err != nil {
		return nil, statusCode, &FetchError{URL: pageURL, StatusCode: statusCode, Reason: "request failed", Err: err}
	}
	f.log.Debug("response received.", slog.Int("status", statusCode),
		slog.Int64("time_to_fetch_ms", time.Since(start).Milliseconds()))
	if statusCode == 0 {
		return nil, 0, &FetchError{URL: pageURL, Reason: "no response", Err: errors.New("empty response")}
	}

	if !allowed.Contains(statusCode) {
		return nil, statusCode, &FetchError{URL: pageURL, StatusCode: statusCode, Reason: "response code is not in the allowed list"}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, statusCode, &FetchError{URL: pageURL, StatusCode: statusCode, Reason: "parse failed", Err: err}
	}
	doc.Url = finalURL

	return doc, statusCode, nil
}
