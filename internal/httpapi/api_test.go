package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/geocode"
	"github.com/signalsfoundry/globe-poi/internal/interaction"
	"github.com/signalsfoundry/globe-poi/internal/scene"
	"github.com/signalsfoundry/globe-poi/model"
	"github.com/signalsfoundry/globe-poi/timectrl"
)

var paris = model.GeoCoordinate{Lat: 48.8566, Lon: 2.3522}

const citiesJSON = `{"markers":[
	{"name":"Paris","lat":48.8566,"lon":2.3522},
	{"name":"Tokyo","lat":35.6762,"lon":139.6503}
]}`

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type routeMetrics struct {
	mu    sync.Mutex
	codes map[string][]int
}

func (m *routeMetrics) ObserveHTTP(route string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = make(map[string][]int)
	}
	m.codes[route] = append(m.codes[route], code)
}

func (m *routeMetrics) get(route string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.codes[route]...)
}

func parisResolver() geocode.Resolver {
	return geocode.ResolverFunc(func(_ context.Context, loc model.GeoCoordinate) (geocode.Address, error) {
		return geocode.Address{DisplayName: "Paris, France", Latitude: loc.Lat, Longitude: loc.Lon}, nil
	})
}

func startAPI(t *testing.T, resolver geocode.Resolver, opts ...Option) *httptest.Server {
	t.Helper()
	ctrl := interaction.NewController(resolver, interaction.WithLookupTimeout(time.Second))
	sc := scene.New(ctrl,
		scene.WithFrameClock(timectrl.NewFrameClock(2*time.Millisecond, timectrl.Accelerated)),
		scene.WithCamera(core.DefaultCamera().Orbit(paris, 6)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx) }()

	srv := httptest.NewServer(New(sc, opts...).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("scene did not stop")
		}
	})
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decode(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func loadCities(t *testing.T, base string) {
	t.Helper()
	resp, body := do(t, http.MethodPut, base+"/v1/markers", citiesJSON)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load markers status = %d body=%s", resp.StatusCode, body)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	srv := startAPI(t, nil)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set(requestIDHeader, "req-7")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get(requestIDHeader); got != "req-7" {
		t.Fatalf("request id header = %q, want req-7", got)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/healthz", "")
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestMarkersAndSelection(t *testing.T) {
	metrics := &routeMetrics{}
	srv := startAPI(t, nil, WithMetrics(metrics))
	loadCities(t, srv.URL)

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/markers", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list struct {
		Markers []struct {
			ID string `json:"id"`
		} `json:"markers"`
	}
	decode(t, body, &list)
	if len(list.Markers) != 2 || list.Markers[0].ID != "Paris" {
		t.Fatalf("markers = %+v", list.Markers)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/markers/Tokyo/select", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select status = %d body=%s", resp.StatusCode, body)
	}
	var sel selectionBody
	decode(t, body, &sel)
	if sel.Selection.Name != "Tokyo" || sel.Modal == nil || sel.Modal.Lat != "35.6762" || sel.Modal.Pending {
		t.Fatalf("selection body = %+v modal=%+v", sel.Selection, sel.Modal)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/markers/Atlantis/select", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown marker status = %d, want 404", resp.StatusCode)
	}

	resp, body = do(t, http.MethodDelete, srv.URL+"/v1/selection", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d", resp.StatusCode)
	}
	sel = selectionBody{}
	decode(t, body, &sel)
	if sel.Modal != nil || sel.Selection.Active() {
		t.Fatalf("selection after close = %+v", sel)
	}

	if got := metrics.get("/v1/markers/:id/select"); len(got) != 2 || got[0] != 200 || got[1] != 404 {
		t.Fatalf("select route metrics = %v", got)
	}
}

func TestLoadMarkersValidation(t *testing.T) {
	srv := startAPI(t, nil)

	resp, _ := do(t, http.MethodPut, srv.URL+"/v1/markers", `{"markers":[{"name":"X","lat":95,"lon":0}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out of range status = %d, want 400", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/markers", `{"markers":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed status = %d, want 400", resp.StatusCode)
	}
}

func TestPickSurfaceAndQR(t *testing.T) {
	srv := startAPI(t, parisResolver(), WithShareBaseURL("https://globe.example/share"))

	resp, _ := do(t, http.MethodGet, srv.URL+"/v1/selection/qr", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("qr without selection status = %d, want 404", resp.StatusCode)
	}

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/pick", `{"x":0,"y":0}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pick status = %d body=%s", resp.StatusCode, body)
	}
	var click scene.ClickResult
	decode(t, body, &click)
	if click.Pick.Kind != core.PickSurface || click.Selection.State != interaction.StatePendingName {
		t.Fatalf("click = %+v", click)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		_, body = do(t, http.MethodGet, srv.URL+"/v1/selection", "")
		var sel selectionBody
		decode(t, body, &sel)
		if sel.Selection.State == interaction.StateResolved {
			if sel.Modal == nil || sel.Modal.Name != "Paris, France" {
				t.Fatalf("resolved modal = %+v", sel.Modal)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("selection never resolved")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/selection/qr?size=128", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("qr status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Fatalf("qr body is not a PNG")
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/selection/qr?size=5", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("tiny qr status = %d, want 400", resp.StatusCode)
	}
}

func TestPickRequiresCoordinates(t *testing.T) {
	srv := startAPI(t, nil)
	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/pick", `{"x":0.5}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/pick", `{"x":1,"y":1,"width":-5,"height":10}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad viewport status = %d, want 400", resp.StatusCode)
	}
}

func TestHoverRoutes(t *testing.T) {
	srv := startAPI(t, nil)
	loadCities(t, srv.URL)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/hover", `{"x":0,"y":0}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("hover status = %d", resp.StatusCode)
	}
	var hovered struct {
		Hovered string `json:"hovered"`
	}
	decode(t, body, &hovered)
	if hovered.Hovered != "Paris" {
		t.Fatalf("hovered = %q, want Paris", hovered.Hovered)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/markers/Paris/hover", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unhover status = %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/markers/Atlantis/hover", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("hover unknown status = %d, want 404", resp.StatusCode)
	}
}

func TestCameraRoutes(t *testing.T) {
	srv := startAPI(t, nil)

	cam := core.DefaultCamera()
	cam.FovY = 50
	raw, _ := json.Marshal(cam)
	resp, _ := do(t, http.MethodPut, srv.URL+"/v1/camera", string(raw))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("set camera status = %d", resp.StatusCode)
	}
	_, body := do(t, http.MethodGet, srv.URL+"/v1/camera", "")
	var got core.Camera
	decode(t, body, &got)
	if got != cam {
		t.Fatalf("camera = %+v, want %+v", got, cam)
	}

	cam.Near = 0
	raw, _ = json.Marshal(cam)
	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/camera", string(raw))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("degenerate camera status = %d, want 400", resp.StatusCode)
	}
}

func TestFrameAndRemount(t *testing.T) {
	srv := startAPI(t, nil)
	loadCities(t, srv.URL)

	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/remount", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remount status = %d", resp.StatusCode)
	}
	resp, body := do(t, http.MethodGet, srv.URL+"/v1/frame", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("frame status = %d", resp.StatusCode)
	}
	var snap scene.FrameSnapshot
	decode(t, body, &snap)
	if len(snap.Markers) != 2 {
		t.Fatalf("frame markers = %d, want 2", len(snap.Markers))
	}
}

func TestMetricsRoute(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "globe_markers 2\n")
	})
	srv := startAPI(t, nil, WithMetricsHandler(h))
	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "globe_markers") {
		t.Fatalf("metrics status = %d body=%s", resp.StatusCode, body)
	}
}

func TestWebsocketStreamsFramesAndClicks(t *testing.T) {
	srv := startAPI(t, nil)
	loadCities(t, srv.URL)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var snap scene.FrameSnapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("first frame: %v", err)
	}

	if err := conn.WriteJSON(pointerEvent{Type: eventClick}); err != nil {
		t.Fatalf("send click: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		snap = scene.FrameSnapshot{}
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("frame: %v", err)
		}
		if snap.Selection.Name == "Paris" {
			break
		}
	}
}

func TestWebsocketOriginCheck(t *testing.T) {
	srv := startAPI(t, nil, WithAllowedOrigins("https://globe.example"))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"

	hdr := http.Header{"Origin": []string{"https://evil.example"}}
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, hdr); err == nil {
		t.Fatalf("expected origin rejection")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("rejection response = %v", resp)
	}

	hdr = http.Header{"Origin": []string{"https://globe.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	if err != nil {
		t.Fatalf("allowed origin dial: %v", err)
	}
	conn.Close()
}

func TestHostPolicy(t *testing.T) {
	policy := hostPolicy("Globe.Example.")
	ctx := context.Background()
	for _, host := range []string{"globe.example", "www.globe.example"} {
		if err := policy(ctx, host); err != nil {
			t.Fatalf("policy(%q) = %v", host, err)
		}
	}
	if err := policy(ctx, "other.example"); err == nil {
		t.Fatalf("expected rejection for other.example")
	}
	if m := CertManager("globe.example", t.TempDir()); m.HostPolicy == nil || m.Cache == nil {
		t.Fatalf("cert manager missing policy or cache")
	}
}
