package reader

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEngine(t *testing.T) {
	t.Parallel()

	cases := map[string]Engine{
		"direct":   EngineDirect,
		"DIRECT":   EngineDirect,
		"rendered": EngineRendered,
		"browser":  EngineRendered,
		" browser": EngineRendered,
		"auto":     EngineAuto,
	}
	for input, want := range cases {
		got, err := ParseEngine(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	_, err := ParseEngine("curl")
	require.ErrorIs(t, err, ErrInvalidEngine)
}

func TestCacheKeySortsRemoveSelectors(t *testing.T) {
	t.Parallel()

	a := CacheKey(FetchRequest{URL: "https://x.test", Engine: EngineDirect, TargetSelector: "main", RemoveSelectors: []string{"nav", ".ad"}})
	b := CacheKey(FetchRequest{URL: "https://x.test", Engine: EngineDirect, TargetSelector: "main", RemoveSelectors: []string{".ad", "nav"}})
	require.Equal(t, a, b)
	require.Equal(t, "direct:https://x.test:main:.ad,nav", a)

	c := CacheKey(FetchRequest{URL: "https://x.test", Engine: EngineRendered})
	require.NotEqual(t, a, c)
}

func TestCacheKeyDoesNotReorderCallerSlice(t *testing.T) {
	t.Parallel()

	selectors := []string{"z", "a"}
	CacheKey(FetchRequest{RemoveSelectors: selectors})
	require.Equal(t, []string{"z", "a"}, selectors)
}

func TestDocumentCloneIsDeep(t *testing.T) {
	t.Parallel()

	tokens := 42
	orig := Document{
		Title:  "t",
		Links:  map[string]string{"a": "https://a"},
		Images: map[string]string{"Image 1": "https://img"},
		Usage:  Usage{Tokens: &tokens},
	}
	cp := orig.Clone()
	cp.Links["a"] = "changed"
	cp.Images["Image 1"] = "changed"
	*cp.Usage.Tokens = 7

	require.Equal(t, "https://a", orig.Links["a"])
	require.Equal(t, "https://img", orig.Images["Image 1"])
	require.Equal(t, 42, *orig.Usage.Tokens)
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		kind   string
		status int
	}{
		{nil, "ok", http.StatusOK},
		{fmt.Errorf("parse: %w", ErrInvalidURL), "invalid_url", http.StatusBadRequest},
		{ErrInvalidEngine, "invalid_engine", http.StatusBadRequest},
		{ErrBlockedHost, "blocked_host", http.StatusForbidden},
		{fmt.Errorf("fetch: %w", ErrTimeout), "timeout", http.StatusBadGateway},
		{&HTTPError{StatusCode: 404}, "http_error", http.StatusBadGateway},
		{ErrNavigation, "navigation_error", http.StatusBadGateway},
		{ErrNoContent, "no_content", http.StatusInternalServerError},
		{errors.New("boom"), "internal", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.kind, Kind(tc.err))
		require.Equal(t, tc.status, StatusCode(tc.err))
	}
	require.Equal(t, "HTTP 404", (&HTTPError{StatusCode: 404}).Error())
}
