package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/globe-poi/internal/observability"
	"github.com/signalsfoundry/globe-poi/model"
)

const tracerName = "github.com/signalsfoundry/globe-poi/internal/geocode"

// DefaultNominatimURL is the public OpenStreetMap instance.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimClient resolves names with the Nominatim /reverse endpoint.
type NominatimClient struct {
	baseURL    string
	userAgent  string
	language   string
	httpClient *http.Client
}

// NominatimOption configures a NominatimClient.
type NominatimOption func(*NominatimClient)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) NominatimOption {
	return func(n *NominatimClient) { n.httpClient = c }
}

// WithLanguage sets the Accept-Language sent with every lookup.
func WithLanguage(lang string) NominatimOption {
	return func(n *NominatimClient) { n.language = lang }
}

// NewNominatimClient creates a client for baseURL. Nominatim's usage policy
// requires an identifying User-Agent.
func NewNominatimClient(baseURL, userAgent string, opts ...NominatimOption) *NominatimClient {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	n := &NominatimClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Error       string `json:"error"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Country string `json:"country"`
	} `json:"address"`
}

// Reverse implements Resolver.
func (n *NominatimClient) Reverse(ctx context.Context, loc model.GeoCoordinate) (Address, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "geocode.Reverse",
		trace.WithAttributes(observability.GeoAttributes(loc.Lat, loc.Lon)...))
	addr, err := n.reverse(ctx, loc)
	observability.EndSpan(span, err)
	return addr, err
}

func (n *NominatimClient) reverse(ctx context.Context, loc model.GeoCoordinate) (Address, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return Address{}, fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}
	if n.language != "" {
		req.Header.Set("Accept-Language", n.language)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("geocode: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Address{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Address{}, fmt.Errorf("geocode: decode response: %w", err)
	}
	if body.Error != "" || strings.TrimSpace(body.DisplayName) == "" {
		return Address{}, fmt.Errorf("%w at %s", ErrNoResult, loc)
	}

	addr := Address{
		DisplayName: body.DisplayName,
		Country:     body.Address.Country,
		City:        firstNonEmpty(body.Address.City, body.Address.Town, body.Address.Village),
		Latitude:    loc.Lat,
		Longitude:   loc.Lon,
	}
	if lat, err := strconv.ParseFloat(body.Lat, 64); err == nil {
		addr.Latitude = lat
	}
	if lon, err := strconv.ParseFloat(body.Lon, 64); err == nil {
		addr.Longitude = lon
	}
	return addr, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
