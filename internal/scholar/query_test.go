package scholar

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildQueryQuotesAndExcludes(t *testing.T) {
	t.Parallel()

	q := BuildQuery([]string{"coral reef", "bleaching"}, []string{"aquarium trade", "tourism"})
	require.Equal(t, `"coral reef" bleaching -"aquarium trade" -tourism`, q)
}

func TestBuildQuerySkipsBlanks(t *testing.T) {
	t.Parallel()

	q := BuildQuery([]string{" ", "reefs", ""}, nil)
	require.Equal(t, "reefs", q)
}

func TestSearchPageURL(t *testing.T) {
	t.Parallel()

	raw := SearchPageURL(PageQuery{Query: "coral reefs", Offset: 20, YearLow: 2020, YearHigh: 2020})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "scholar.google.com", u.Host)
	require.Equal(t, "/scholar", u.Path)

	q := u.Query()
	require.Equal(t, "coral reefs", q.Get("q"))
	require.Equal(t, "20", q.Get("start"))
	require.Equal(t, "2020", q.Get("as_ylo"))
	require.Equal(t, "2020", q.Get("as_yhi"))
	require.Equal(t, "en", q.Get("hl"))
}

func TestSearchPageURLOmitsZeroParams(t *testing.T) {
	t.Parallel()

	raw := SearchPageURL(PageQuery{Query: "reefs"})
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	require.Empty(t, q.Get("start"))
	require.Empty(t, q.Get("as_ylo"))
	require.Empty(t, q.Get("as_yhi"))
}
