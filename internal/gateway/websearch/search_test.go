package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><body>
<div class="result results_links result--ad">
  <a class="result__a" href="https://ads.example.com">Sponsored</a>
</div>
<div class="result results_links results_links_deep web-result">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.bcp.com.pe%2F&amp;rut=abc">
    Banco de Credito   del Peru</a></h2>
  <a class="result__snippet">El banco   mas grande
  del Peru.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <h2><a class="result__a" href="https://www.sunat.gob.pe/">SUNAT</a></h2>
  <a class="result__snippet">Consulta RUC</a>
</div>
<div class="result results_links web-result">
  <h2><a class="result__a" href="">No link</a></h2>
</div>
</body></html>`

func newTestSearcher(t *testing.T, handler http.HandlerFunc) *Searcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger, _ := test.NewNullLogger()
	return NewSearcher(srv.URL, logger)
}

func TestSearch(t *testing.T) {
	var gotQuery, gotRegion string
	s := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotRegion = r.URL.Query().Get("kl")
		w.Write([]byte(resultsPage))
	})

	results, err := s.Search(context.Background(), "  bcp   peru ", 10)
	require.NoError(t, err)
	assert.Equal(t, "bcp peru", gotQuery)
	assert.Equal(t, "pe-es", gotRegion)

	require.Len(t, results, 2)
	assert.Equal(t, "Banco de Credito del Peru", results[0].Title)
	assert.Equal(t, "El banco mas grande del Peru.", results[0].Description)
	assert.Equal(t, "https://www.bcp.com.pe/", results[0].Link)
	assert.Equal(t, "https://www.sunat.gob.pe/", results[1].Link)
}

func TestSearchLimit(t *testing.T) {
	s := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultsPage))
	})

	results, err := s.Search(context.Background(), "bcp", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchEmptyQuery(t *testing.T) {
	s := NewSearcher("", nil)
	_, err := s.Search(context.Background(), " \t ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchUpstreamError(t *testing.T) {
	s := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := s.Search(context.Background(), "bcp", 5)
	assert.ErrorContains(t, err, "status 503")
}

func TestResolveLink(t *testing.T) {
	assert.Equal(t, "https://example.com/a b", resolveLink("//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa%20b&rut=x"))
	assert.Equal(t, "https://plain.example", resolveLink("https://plain.example"))
}
