package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every catalog request
const DefaultTimeout = 10 * time.Second

// ErrUnexpectedMarkup is returned when a WebPAC page lacks the structure being scraped
var ErrUnexpectedMarkup = errors.New("unexpected catalog markup")

// Item is one physical copy attached to a bib record
type Item struct {
	Location     string `json:"location"`
	CallNumber   string `json:"call_number"`
	Availability string `json:"availability"`
}

// Client scrapes a WebPAC catalog
type Client struct {
	BaseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for the catalog at host:port.
// requestsPerSecond <= 0 disables pacing.
func NewClient(host string, port int, timeout time.Duration, requestsPerSecond float64) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &Client{
		BaseURL: fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// ItemsURL is the record page listing the items of bibNumber
func (c *Client) ItemsURL(bibNumber string) string {
	bib := "b" + bibNumber
	return fmt.Sprintf("%s/search~S1?/.%s/.%s/1%%2C1%%2C1%%2CB/marc~%s", c.BaseURL, bib, bib, bib)
}

// SearchBaseURL is the scoped search prefix used by rendered paging lists
func (c *Client) SearchBaseURL(scopeID string) string {
	return fmt.Sprintf("%s/search~S%s/,?", c.BaseURL, scopeID)
}

// FetchItems returns location, call number and availability for each item of a bib record
func (c *Client) FetchItems(ctx context.Context, bibNumber string) ([]Item, error) {
	if bibNumber == "" {
		return nil, fmt.Errorf("bib number is required")
	}

	doc, err := c.fetch(ctx, c.ItemsURL(bibNumber))
	if err != nil {
		return nil, err
	}

	table := doc.Find("table.bibItems").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: no bibItems table for %s", ErrUnexpectedMarkup, bibNumber)
	}

	var locations, callNumbers, availabilities []string
	table.Find("td").Each(func(_ int, td *goquery.Selection) {
		switch fieldMarker(td) {
		case "1":
			locations = append(locations, cleanText(td.Text()))
		case "C":
			callNumbers = append(callNumbers, cleanText(td.Find("a").First().Text()))
		case "%":
			availabilities = append(availabilities, cleanText(td.Text()))
		}
	})

	if len(locations) == 0 {
		return nil, fmt.Errorf("%w: no location field for %s", ErrUnexpectedMarkup, bibNumber)
	}
	if len(availabilities) == 0 {
		return nil, fmt.Errorf("%w: no availability field for %s", ErrUnexpectedMarkup, bibNumber)
	}

	items := make([]Item, len(locations))
	for i, loc := range locations {
		items[i].Location = loc
		if i < len(callNumbers) {
			items[i].CallNumber = callNumbers[i]
		}
		if i < len(availabilities) {
			items[i].Availability = availabilities[i]
		}
	}

	return items, nil
}

// FetchSearchScopes maps each search scope's display name to its scope id
func (c *Client) FetchSearchScopes(ctx context.Context) (map[string]string, error) {
	doc, err := c.fetch(ctx, c.BaseURL)
	if err != nil {
		return nil, err
	}

	sel := doc.Find("select#searchscope").First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: no searchscope select", ErrUnexpectedMarkup)
	}

	scopes := make(map[string]string)
	sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
		value, ok := opt.Attr("value")
		if !ok {
			return
		}
		scopes[strings.TrimSpace(opt.Text())] = value
	})

	return scopes, nil
}

func (c *Client) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, string(body))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog page: %w", err)
	}
	return doc, nil
}

// fieldMarker returns the WebPAC field code from a leading <!-- field X --> comment
func fieldMarker(td *goquery.Selection) string {
	for _, n := range td.Nodes {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != html.CommentNode {
				continue
			}
			code, ok := strings.CutPrefix(strings.TrimSpace(child.Data), "field ")
			if ok {
				return strings.TrimSpace(code)
			}
		}
	}
	return ""
}

// cleanText drops non-breaking spaces and surrounding whitespace
func cleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", ""))
}
