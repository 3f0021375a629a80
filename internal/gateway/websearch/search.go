// Package websearch looks up public web results for the agent through the
// DuckDuckGo HTML endpoint.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
)

const (
	// DefaultEndpoint is the DuckDuckGo HTML search page
	DefaultEndpoint = "https://html.duckduckgo.com/html/"

	defaultLimit = 5
	maxLimit     = 20
	userAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ErrEmptyQuery is returned for blank queries
var ErrEmptyQuery = errors.New("empty query")

// Searcher queries the web
type Searcher struct {
	endpoint string
	region   string
	client   *http.Client
	log      logrus.FieldLogger
}

// NewSearcher creates a searcher. An empty endpoint means DefaultEndpoint.
func NewSearcher(endpoint string, logger logrus.FieldLogger) *Searcher {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Searcher{
		endpoint: endpoint,
		region:   "pe-es",
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      logger,
	}
}

// Search returns up to limit results for query
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]models.WebResult, error) {
	q := singleLine(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}

	values := url.Values{"q": {q}, "kl": {s.region}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "es-PE,es;q=0.9,en;q=0.8")

	started := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("web search: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	results := make([]models.WebResult, 0, limit)
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.HasClass("result--ad") {
			return true
		}
		a := sel.Find("a.result__a").First()
		title := singleLine(a.Text())
		link := strings.TrimSpace(a.AttrOr("href", ""))
		if title == "" || link == "" {
			return true
		}
		results = append(results, models.WebResult{
			Title:       title,
			Description: singleLine(sel.Find(".result__snippet").First().Text()),
			Link:        resolveLink(link),
		})
		return len(results) < limit
	})

	s.log.WithFields(logrus.Fields{
		"query":   q,
		"results": len(results),
		"took":    time.Since(started).String(),
	}).Debug("[WEB] search complete")

	return results, nil
}

// resolveLink unwraps DuckDuckGo redirect links (//duckduckgo.com/l/?uddg=...)
func resolveLink(link string) string {
	if strings.HasPrefix(link, "//") {
		link = "https:" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return link
}

// singleLine trims and collapses internal whitespace to single spaces
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
