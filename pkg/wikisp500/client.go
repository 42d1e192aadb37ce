// Package wikisp500 scrapes S&P 500 reference data from Wikipedia: the
// current constituent listing and the historical change table.
package wikisp500

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/resilience"
)

const companiesPath = "/wiki/List_of_S%26P_500_companies"

// Client defines the reference data operations.
type Client interface {
	// Constituents returns the current constituent listing.
	Constituents(ctx context.Context) ([]model.Constituent, error)
	// Changes returns historical add/remove events from startYear onward.
	Changes(ctx context.Context, startYear int) ([]model.MembershipChangeEvent, error)
	// SnapshotForYear derives a base snapshot from the current listing.
	// Wikipedia serves only the present-day table, so every year gets the
	// same ticker set; the year keys caching upstream.
	SnapshotForYear(ctx context.Context, year int) (model.BaseSnapshot, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryConfig overrides the retry policy for page fetches.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a Wikipedia reference data client.
func NewClient(opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = 2 * time.Second
	c := &httpClient{
		baseURL: "https://en.wikipedia.org",
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fetchDocument retrieves and parses the companies page. Failures after
// retries wrap ErrSourceUnavailable so callers can tell a dead source from
// an empty table.
func (c *httpClient) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("wikipedia", "fetch companies page")
	}
	doc, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*goquery.Document, error) {
		return c.fetchOnce(ctx)
	})
	if err != nil {
		return nil, eris.Wrap(model.ErrSourceUnavailable, err.Error())
	}
	return doc, nil
}

func (c *httpClient) fetchOnce(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+companiesPath, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikisp500: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; indexfill)")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wikisp500: fetch companies page")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("wikisp500: companies page: status %d", resp.StatusCode)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wikisp500: parse companies page")
	}
	return doc, nil
}

func (c *httpClient) Constituents(ctx context.Context) ([]model.Constituent, error) {
	doc, err := c.fetchDocument(ctx)
	if err != nil {
		return nil, err
	}
	return parseConstituents(doc)
}

func (c *httpClient) Changes(ctx context.Context, startYear int) ([]model.MembershipChangeEvent, error) {
	doc, err := c.fetchDocument(ctx)
	if err != nil {
		return nil, err
	}
	return parseChanges(doc, startYear)
}

func (c *httpClient) SnapshotForYear(ctx context.Context, year int) (model.BaseSnapshot, error) {
	constituents, err := c.Constituents(ctx)
	if err != nil {
		return model.BaseSnapshot{}, err
	}
	tickers := make(map[string]struct{}, len(constituents))
	for _, con := range constituents {
		tickers[con.Ticker] = struct{}{}
	}
	return model.BaseSnapshot{
		ReferenceDate: time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
		Tickers:       tickers,
	}, nil
}

// FetchAll retrieves constituents and changes with one concurrent pass over
// the client. The two queries hit independent tables and fail independently.
func FetchAll(ctx context.Context, c Client, startYear int) ([]model.Constituent, []model.MembershipChangeEvent, error) {
	var (
		constituents []model.Constituent
		changes      []model.MembershipChangeEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		constituents, err = c.Constituents(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		changes, err = c.Changes(gctx, startYear)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return constituents, changes, nil
}

// ToProviderSymbol maps a listing symbol to provider notation, e.g. class
// shares BRK.B become BRK-B.
func ToProviderSymbol(sym string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(sym)), ".", "-")
}

var nameNormalizer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeName strips diacritics and collapses whitespace in scraped
// company names (e.g. "Moët" scrapes as "Moët").
func normalizeName(name string) string {
	clean, _, err := transform.String(nameNormalizer, name)
	if err != nil {
		clean = name
	}
	return strings.Join(strings.Fields(clean), " ")
}

func parseConstituents(doc *goquery.Document) ([]model.Constituent, error) {
	table := doc.Find("table#constituents")
	if table.Length() == 0 {
		// Older page revisions lack the id; fall back to the first wikitable.
		table = doc.Find("table.wikitable").First()
	}
	if table.Length() == 0 {
		return nil, eris.New("wikisp500: constituents table not found")
	}

	var constituents []model.Constituent
	table.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		ticker := ToProviderSymbol(cells.Eq(0).Text())
		if ticker == "" {
			return
		}
		con := model.Constituent{
			Ticker:  ticker,
			Company: normalizeName(cells.Eq(1).Text()),
			Sector:  strings.TrimSpace(cells.Eq(2).Text()),
		}
		if cells.Length() > 5 {
			if added, err := parseWikiDate(cells.Eq(5).Text()); err == nil {
				con.DateAdded = &added
			}
		}
		constituents = append(constituents, con)
	})
	if len(constituents) == 0 {
		return nil, eris.New("wikisp500: constituents table empty")
	}
	return constituents, nil
}

func parseChanges(doc *goquery.Document, startYear int) ([]model.MembershipChangeEvent, error) {
	table := doc.Find("table#changes")
	if table.Length() == 0 {
		table = doc.Find("table.wikitable").Eq(1)
	}
	if table.Length() == 0 {
		return nil, eris.New("wikisp500: changes table not found")
	}

	var events []model.MembershipChangeEvent
	var current time.Time
	table.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}

		// The date cell spans rows for multi-ticker dates; a short row
		// inherits the date from the row above.
		offset := 0
		if d, err := parseWikiDate(cells.Eq(0).Text()); err == nil {
			current = d
			offset = 1
		}
		if current.IsZero() || current.Year() < startYear {
			return
		}
		// Columns after the date: added ticker, added security, removed
		// ticker, removed security, reason.
		if cells.Length() >= offset+1 {
			if added := ToProviderSymbol(cells.Eq(offset).Text()); tickerLike(added) {
				events = append(events, model.MembershipChangeEvent{
					EffectiveDate: current,
					Action:        model.ActionAdd,
					Ticker:        added,
					Description:   normalizeName(cells.Eq(offset + 1).Text()) + " added",
				})
			}
		}
		if cells.Length() >= offset+3 {
			if removed := ToProviderSymbol(cells.Eq(offset + 2).Text()); tickerLike(removed) {
				events = append(events, model.MembershipChangeEvent{
					EffectiveDate: current,
					Action:        model.ActionRemove,
					Ticker:        removed,
					Description:   normalizeName(cells.Eq(offset + 3).Text()) + " removed",
				})
			}
		}
	})
	return events, nil
}

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9-]{0,5}$`)

func tickerLike(s string) bool {
	return tickerPattern.MatchString(s)
}

// parseWikiDate handles the "January 2, 2024" format used in the tables.
func parseWikiDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"January 2, 2006", model.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Day(t), nil
		}
	}
	return time.Time{}, eris.Errorf("wikisp500: unparseable date %q", s)
}
