package markersource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalsfoundry/globe-poi/internal/config"
	"github.com/signalsfoundry/globe-poi/model"
)

const markersJSON = `[
	{"name": "Paris", "lat": 48.8566, "lon": 2.3522},
	{"name": "Tokyo", "lat": 35.6762, "lon": 139.6503}
]`

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.json")
	if err := os.WriteFile(path, []byte(markersJSON), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	recs, err := FileSource{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 2 || recs[1].Name != "Tokyo" {
		t.Fatalf("Load = %+v", recs)
	}

	if _, err := (FileSource{Path: filepath.Join(t.TempDir(), "nope.json")}).Load(context.Background()); err == nil {
		t.Fatalf("missing file should fail")
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/cities.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(markersJSON))
	}))
	defer srv.Close()

	recs, err := NewHTTPSource(srv.URL + "/data/cities.json").Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Load = %+v", recs)
	}

	if _, err := NewHTTPSource(srv.URL + "/missing").Load(context.Background()); err == nil {
		t.Fatalf("404 should fail")
	}
}

func TestSQLiteSource(t *testing.T) {
	src, err := OpenSQLite(":memory:", "markers")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	if _, err := src.DB().ExecContext(ctx, `CREATE TABLE markers (name TEXT PRIMARY KEY, lat REAL NOT NULL, lon REAL NOT NULL)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, r := range []model.MarkerRecord{
		{Name: "Lima", Lat: -12.0464, Lon: -77.0428},
		{Name: "Cairo", Lat: 30.0444, Lon: 31.2357},
	} {
		if _, err := src.DB().ExecContext(ctx, `INSERT INTO markers (name, lat, lon) VALUES (?, ?, ?)`, r.Name, r.Lat, r.Lon); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	recs, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 2 || recs[0].Name != "Lima" || recs[1].Lat != 30.0444 {
		t.Fatalf("Load = %+v", recs)
	}

	if _, err := src.DB().ExecContext(ctx, `INSERT INTO markers (name, lat, lon) VALUES ('Bad', 91, 0)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := src.Load(ctx); !errors.Is(err, model.ErrInvalidMarker) {
		t.Fatalf("Load err = %v, want ErrInvalidMarker", err)
	}
}

func TestPostgresSource(t *testing.T) {
	dsn := os.Getenv("GLOBE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GLOBE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	src, err := OpenPostgres(ctx, dsn, "globe_test_markers")
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer src.Close()

	if _, err := src.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS globe_test_markers (name TEXT PRIMARY KEY, lat DOUBLE PRECISION, lon DOUBLE PRECISION)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	defer src.pool.Exec(ctx, `DROP TABLE globe_test_markers`)
	if _, err := src.pool.Exec(ctx, `DELETE FROM globe_test_markers`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := src.pool.Exec(ctx, `INSERT INTO globe_test_markers VALUES ('Oslo', 59.9139, 10.7522)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	recs, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "Oslo" {
		t.Fatalf("Load = %+v", recs)
	}
}

func TestNewRejectsBadTable(t *testing.T) {
	cfg := config.Default()
	cfg.MarkerSource = config.SourceSQLite
	cfg.MarkerDSN = ":memory:"
	cfg.MarkerTable = "markers; DROP TABLE x"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("unsafe table name accepted")
	}

	cfg = config.Default()
	src, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New(default): %v", err)
	}
	if src.Describe() != "file:markers.json" {
		t.Fatalf("Describe = %q", src.Describe())
	}
}
