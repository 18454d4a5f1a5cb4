package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webreader/internal/config"
	"github.com/JakeFAU/webreader/internal/reader"
)

// MockApp mocks the App interface.
type MockApp struct {
	mock.Mock
}

// Run satisfies the App interface for the mock.
func (m *MockApp) Run(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Resolve satisfies the App interface for the mock.
func (m *MockApp) Resolve(ctx context.Context, req reader.FetchRequest) (reader.Document, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(reader.Document), args.Error(1)
}

// Close satisfies the App interface for the mock.
func (m *MockApp) Close() {
	m.Called()
}

// withMockApp swaps the app factory for the duration of a test.
func withMockApp(t *testing.T, app App, factoryErr error) {
	t.Helper()
	original := newApp
	newApp = func(config.Config) (App, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		return app, nil
	}
	t.Cleanup(func() {
		newApp = original
		cfgFile = ""
	})
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFetchCommandPrintsMarkdown(t *testing.T) {
	app := new(MockApp)
	withMockApp(t, app, nil)

	want := reader.FetchRequest{
		URL:             "https://example.com/post",
		Engine:          reader.EngineRendered,
		TargetSelector:  "article",
		RemoveSelectors: []string{".ad", ".nav"},
		IncludeLinks:    true,
		Timeout:         3 * time.Second,
		NoCache:         true,
	}
	app.On("Resolve", mock.Anything, want).Return(reader.Document{
		URL:     "https://example.com/post",
		Title:   "Post",
		Content: "Body text",
	}, nil).Once()
	app.On("Close").Return().Once()

	out, err := execute("fetch", "example.com/post", "--js", "--target", "article",
		"--remove", ".ad,.nav", "--links", "--timeout", "3s")
	require.NoError(t, err)
	require.Contains(t, out, "# Post")
	require.Contains(t, out, "Body text")
	app.AssertExpectations(t)
}

func TestFetchCommandPrintsJSON(t *testing.T) {
	app := new(MockApp)
	withMockApp(t, app, nil)

	app.On("Resolve", mock.Anything, mock.MatchedBy(func(req reader.FetchRequest) bool {
		return req.URL == "http://example.com" && req.Engine == "direct"
	})).Return(reader.Document{Title: "T", Content: "C", Engine: reader.EngineDirect}, nil).Once()
	app.On("Close").Return().Once()

	out, err := execute("fetch", "http://example.com", "--engine", "direct", "--json")
	require.NoError(t, err)
	require.Contains(t, out, `"title": "T"`)
	require.Contains(t, out, `"engine": "direct"`)
	app.AssertExpectations(t)
}

func TestFetchCommandReturnsResolveError(t *testing.T) {
	app := new(MockApp)
	withMockApp(t, app, nil)

	app.On("Resolve", mock.Anything, mock.Anything).Return(reader.Document{}, reader.ErrBlockedHost).Once()
	app.On("Close").Return().Once()

	_, err := execute("fetch", "localhost")
	require.ErrorIs(t, err, reader.ErrBlockedHost)
	app.AssertExpectations(t)
}

func TestFetchCommandRequiresURL(t *testing.T) {
	app := new(MockApp)
	withMockApp(t, app, nil)
	app.On("Close").Return().Maybe()

	_, err := execute("fetch")
	require.Error(t, err)
	app.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestServeCommandRunsApp(t *testing.T) {
	app := new(MockApp)
	withMockApp(t, app, nil)

	app.On("Run", mock.Anything).Return(nil).Once()
	app.On("Close").Return().Once()

	_, err := execute("serve")
	require.NoError(t, err)
	app.AssertExpectations(t)
}

func TestServeCommandWrapsRunError(t *testing.T) {
	app := new(MockApp)
	withMockApp(t, app, nil)

	app.On("Run", mock.Anything).Return(errors.New("address in use")).Once()
	app.On("Close").Return().Once()

	_, err := execute("serve")
	require.ErrorContains(t, err, "serve: address in use")
	app.AssertExpectations(t)
}

func TestRootCommandFactoryError(t *testing.T) {
	withMockApp(t, nil, errors.New("no chrome"))

	_, err := execute("serve")
	require.ErrorContains(t, err, "failed to initialize application services")
}

func TestRootCommandBadConfigFile(t *testing.T) {
	app := new(MockApp)
	withMockApp(t, app, nil)

	_, err := execute("--config", "/nonexistent/webreader.yaml", "serve")
	require.ErrorContains(t, err, "load config")
	app.AssertNotCalled(t, "Run", mock.Anything)
}

func TestResolveAppMissing(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
