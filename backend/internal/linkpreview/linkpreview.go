package linkpreview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"circlenet/backend/internal/graph"
	"circlenet/backend/pkg/logger"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const maxPageBytes = 512 * 1024

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// FirstURL returns the first http(s) URL in text, or "" when there is none
func FirstURL(text string) string {
	match := urlPattern.FindString(text)
	return strings.TrimRight(match, ".,;:!?)]}")
}

// Fetcher builds Open Graph previews for links in chat messages
type Fetcher struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewFetcher creates a Fetcher. A nil client gets a guarded short-timeout
// default.
func NewFetcher(httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = NewGuardedClient(5 * time.Second)
	}
	return &Fetcher{httpClient: httpClient, logger: logger.Named("linkpreview")}
}

// Fetch downloads the page at rawURL and extracts its preview metadata
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*graph.LinkPreview, error) {
	base, err := url.Parse(rawURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("unsupported url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CirclenetPreview/1.0)")
	req.Header.Set("Accept", "text/html")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("fetch %s: not an html page (%s)", rawURL, ct)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return extract(doc, base), nil
}

// Preview returns a preview for the first URL in text. Fetch failures are
// logged and yield nil, a message is never rejected over its preview.
func (f *Fetcher) Preview(ctx context.Context, text string) *graph.LinkPreview {
	link := FirstURL(text)
	if link == "" {
		return nil
	}
	preview, err := f.Fetch(ctx, link)
	if err != nil {
		f.logger.Debug("Link preview unavailable", zap.String("url", link), zap.Error(err))
		return nil
	}
	return preview
}

func extract(doc *goquery.Document, base *url.URL) *graph.LinkPreview {
	meta := func(keys ...string) string {
		for _, key := range keys {
			sel := doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, key, key)).First()
			if content, ok := sel.Attr("content"); ok && strings.TrimSpace(content) != "" {
				return strings.TrimSpace(content)
			}
		}
		return ""
	}

	preview := &graph.LinkPreview{
		URL:         base.String(),
		Title:       meta("og:title", "twitter:title"),
		Description: meta("og:description", "twitter:description", "description"),
		SiteName:    meta("og:site_name"),
	}
	if preview.Title == "" {
		preview.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if preview.SiteName == "" {
		preview.SiteName = base.Hostname()
	}
	if canonical := meta("og:url"); canonical != "" {
		if u, err := base.Parse(canonical); err == nil {
			preview.URL = u.String()
		}
	}
	if image := meta("og:image", "twitter:image"); image != "" {
		if u, err := base.Parse(image); err == nil {
			preview.ImageURL = u.String()
		}
	}
	return preview
}
