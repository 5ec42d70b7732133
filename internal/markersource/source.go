// Package markersource loads the session's point-of-interest list from a
// file, an HTTP endpoint or a database table.
package markersource

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/config"
	"github.com/signalsfoundry/globe-poi/model"
)

// Source yields the static marker list.
type Source interface {
	Load(ctx context.Context) ([]model.MarkerRecord, error)
	// Describe names the source for logs.
	Describe() string
	Close() error
}

// FileSource reads a JSON marker file.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s FileSource) Load(context.Context) ([]model.MarkerRecord, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("markersource: open %s: %w", s.Path, err)
	}
	defer f.Close()
	return core.LoadMarkers(f)
}

func (s FileSource) Describe() string { return "file:" + s.Path }
func (s FileSource) Close() error     { return nil }

// HTTPSource fetches the marker JSON from a URL, the way a browser client
// would fetch a static asset.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource returns a source with a bounded client.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Load implements Source.
func (s *HTTPSource) Load(ctx context.Context) ([]model.MarkerRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("markersource: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("markersource: fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("markersource: fetch %s: status %d", s.URL, resp.StatusCode)
	}
	return core.LoadMarkers(resp.Body)
}

func (s *HTTPSource) Describe() string { return "http:" + s.URL }
func (s *HTTPSource) Close() error     { return nil }

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// checkTable guards the table name spliced into SELECT statements.
func checkTable(table string) error {
	if !identRE.MatchString(table) {
		return fmt.Errorf("markersource: invalid table name %q", table)
	}
	return nil
}

// New builds the source selected by cfg.
func New(ctx context.Context, cfg config.Config) (Source, error) {
	switch strings.ToLower(cfg.MarkerSource) {
	case config.SourceFile, "":
		return FileSource{Path: cfg.MarkerPath}, nil
	case config.SourceHTTP:
		return NewHTTPSource(cfg.MarkerURL), nil
	case config.SourceSQLite:
		return OpenSQLite(cfg.MarkerDSN, cfg.MarkerTable)
	case config.SourcePostgres:
		return OpenPostgres(ctx, cfg.MarkerDSN, cfg.MarkerTable)
	default:
		return nil, fmt.Errorf("markersource: unknown source %q", cfg.MarkerSource)
	}
}
