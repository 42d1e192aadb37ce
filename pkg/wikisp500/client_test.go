package wikisp500

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquant/indexfill/internal/model"
	"github.com/openquant/indexfill/internal/resilience"
)

const companiesPage = `<html><body>
<table id="constituents" class="wikitable">
<tbody>
<tr><th>Symbol</th><th>Security</th><th>GICS Sector</th><th>Sub-Industry</th><th>HQ</th><th>Date added</th><th>CIK</th></tr>
<tr><td>AAPL</td><td>Apple Inc.</td><td>Information Technology</td><td>Hardware</td><td>Cupertino</td><td>1982-11-30</td><td>320193</td></tr>
<tr><td>BRK.B</td><td>Berkshire Hathaway</td><td>Financials</td><td>Holding</td><td>Omaha</td><td>2010-02-16</td><td>1067983</td></tr>
<tr><td>MSFT</td><td>Microsoft</td><td>Information Technology</td><td>Software</td><td>Redmond</td><td>1994-06-01</td><td>789019</td></tr>
</tbody>
</table>
<table id="changes" class="wikitable">
<tbody>
<tr><th rowspan="2">Date</th><th colspan="2">Added</th><th colspan="2">Removed</th><th rowspan="2">Reason</th></tr>
<tr><th>Ticker</th><th>Security</th><th>Ticker</th><th>Security</th></tr>
<tr><td rowspan="2">January 22, 2024</td><td>SMCI</td><td>Super Micro Computer</td><td>WHR</td><td>Whirlpool</td><td>Market cap change</td></tr>
<tr><td>DECK</td><td>Deckers Outdoor</td><td>ZION</td><td>Zions Bancorporation</td><td>Market cap change</td></tr>
<tr><td>June 20, 1999</td><td>OLDT</td><td>Old Ticker Corp</td><td></td><td></td><td>Before cutoff</td></tr>
</tbody>
</table>
</body></html>`

func newTestClient(t *testing.T) Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, companiesPage)
	}))
	t.Cleanup(srv.Close)
	return NewClient(WithBaseURL(srv.URL))
}

func TestConstituents(t *testing.T) {
	c := newTestClient(t)

	constituents, err := c.Constituents(context.Background())
	require.NoError(t, err)
	require.Len(t, constituents, 3)

	assert.Equal(t, "AAPL", constituents[0].Ticker)
	assert.Equal(t, "Apple Inc.", constituents[0].Company)
	assert.Equal(t, "Information Technology", constituents[0].Sector)
	require.NotNil(t, constituents[0].DateAdded)
	assert.Equal(t, time.Date(1982, 11, 30, 0, 0, 0, 0, time.UTC), *constituents[0].DateAdded)

	// Class shares are mapped to provider notation.
	assert.Equal(t, "BRK-B", constituents[1].Ticker)
}

func TestChanges(t *testing.T) {
	c := newTestClient(t)

	events, err := c.Changes(context.Background(), 2000)
	require.NoError(t, err)
	require.Len(t, events, 4)

	byKey := make(map[string]model.MembershipChangeEvent, len(events))
	for _, e := range events {
		byKey[string(e.Action)+":"+e.Ticker] = e
	}

	add, ok := byKey["add:SMCI"]
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC), add.EffectiveDate)

	// The rowspan date carries to the second row.
	deck, ok := byKey["add:DECK"]
	require.True(t, ok)
	assert.Equal(t, add.EffectiveDate, deck.EffectiveDate)

	_, ok = byKey["remove:WHR"]
	assert.True(t, ok)
	_, ok = byKey["remove:ZION"]
	assert.True(t, ok)

	// Rows before the start year are skipped.
	_, ok = byKey["add:OLDT"]
	assert.False(t, ok)
}

func TestSnapshotForYear(t *testing.T) {
	c := newTestClient(t)

	snap, err := c.SnapshotForYear(context.Background(), 2024)
	require.NoError(t, err)
	assert.Len(t, snap.Tickers, 3)
	assert.Contains(t, snap.Tickers, "BRK-B")
	assert.Equal(t, 2024, snap.ReferenceDate.Year())
}

func TestFetchAll(t *testing.T) {
	c := newTestClient(t)

	constituents, changes, err := FetchAll(context.Background(), c, 2000)
	require.NoError(t, err)
	assert.Len(t, constituents, 3)
	assert.Len(t, changes, 4)
}

func TestFetchDocument_SourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
		WithRetryConfig(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}),
	)
	_, err := c.Constituents(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
}

func TestFetchDocument_RetriesTransientStatus(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, companiesPage)
	}))
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithRetryConfig(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}),
	)
	rows, err := c.Constituents(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
	assert.Equal(t, 2, hits)
}

func TestToProviderSymbol(t *testing.T) {
	assert.Equal(t, "BRK-B", ToProviderSymbol(" brk.b "))
	assert.Equal(t, "BF-B", ToProviderSymbol("BF.B"))
	assert.Equal(t, "AAPL", ToProviderSymbol("AAPL"))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Moet Hennessy", normalizeName("Moët  Hennessy"))
	assert.Equal(t, "Nestle", normalizeName("Nestlé"))
}
