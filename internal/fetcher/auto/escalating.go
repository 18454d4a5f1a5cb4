// Package auto implements a fetcher that starts with a plain HTTP GET and
// escalates to a browser render only when the response looks like an
// unrendered client-side application.
package auto

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/webreader/internal/reader"
)

// Detector decides whether directly fetched HTML needs rendering.
type Detector interface {
	ShouldPromote(html string) bool
}

// Fetcher implements reader.Fetcher by chaining a direct and a rendered fetcher.
type Fetcher struct {
	direct   reader.Fetcher
	rendered reader.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New builds an escalating Fetcher. All collaborators are required.
func New(direct, rendered reader.Fetcher, detector Detector, logger *zap.Logger) (*Fetcher, error) {
	if direct == nil || rendered == nil {
		return nil, errors.New("auto: direct and rendered fetchers are required")
	}
	if detector == nil {
		return nil, errors.New("auto: detector is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{direct: direct, rendered: rendered, detector: detector, logger: logger}, nil
}

// Fetch tries the direct engine first. Upstream errors are returned as-is; a
// successful but shell-like response is fetched again with the rendered engine.
func (f *Fetcher) Fetch(ctx context.Context, request reader.FetchRequest) (string, error) {
	html, err := f.direct.Fetch(ctx, request)
	if err != nil {
		return "", err
	}
	if !f.detector.ShouldPromote(html) {
		return html, nil
	}
	f.logger.Info("escalating to rendered engine", zap.String("url", request.URL), zap.Int("direct_bytes", len(html)))
	rendered, err := f.rendered.Fetch(ctx, request)
	if err != nil {
		return "", fmt.Errorf("rendered escalation: %w", err)
	}
	return rendered, nil
}
