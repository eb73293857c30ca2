// Package provider fetches elevation grids from remote DEM services.
package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/demterrain/internal/logger"
	"github.com/Faultbox/demterrain/pkg/dem"
	"github.com/Faultbox/demterrain/pkg/geo"
)

// Provider errors.
var (
	ErrMissingAPIKey  = errors.New("missing API key")
	ErrProviderStatus = errors.New("elevation provider returned an error")
	ErrNotGeoTIFF     = errors.New("response is not a TIFF file")
)

// OutputFormat is the globaldem outputFormat parameter.
type OutputFormat string

// Supported output formats.
const (
	FormatAAIGrid OutputFormat = "AAIGrid" // Esri ASCII grid text
	FormatGTiff   OutputFormat = "GTiff"   // Binary GeoTIFF
)

// maxResponseSize caps downloaded grids.
const maxResponseSize = 256 << 20

// ElevationDataProvider returns elevation data covering bounds, either as
// Esri ASCII grid text or as a GeoTIFF file.
type ElevationDataProvider interface {
	FetchASCIIGrid(ctx context.Context, bounds geo.Bounds, model dem.HeightModel) ([]byte, error)
	FetchGeoTIFF(ctx context.Context, bounds geo.Bounds, model dem.HeightModel) ([]byte, error)
}

// OpenTopography queries the OpenTopography global DEM API.
type OpenTopography struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

var _ ElevationDataProvider = (*OpenTopography)(nil)

// NewOpenTopography creates a client with the given request timeout.
func NewOpenTopography(baseURL, apiKey string, timeout time.Duration) *OpenTopography {
	return &OpenTopography{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

// RequestURL builds the globaldem query for bounds.
func (o *OpenTopography) RequestURL(bounds geo.Bounds, model dem.HeightModel, format OutputFormat) (string, error) {
	u, err := url.Parse(o.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}

	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	q := u.Query()
	q.Set("demtype", model.APIReference())
	q.Set("south", ff(bounds.South))
	q.Set("north", ff(bounds.North))
	q.Set("west", ff(bounds.West))
	q.Set("east", ff(bounds.East))
	q.Set("outputFormat", string(format))
	q.Set("API_Key", o.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchASCIIGrid downloads the grid text for bounds.
func (o *OpenTopography) FetchASCIIGrid(ctx context.Context, bounds geo.Bounds, model dem.HeightModel) ([]byte, error) {
	return o.fetch(ctx, bounds, model, FormatAAIGrid)
}

// FetchGeoTIFF downloads bounds as a GeoTIFF file.
func (o *OpenTopography) FetchGeoTIFF(ctx context.Context, bounds geo.Bounds, model dem.HeightModel) ([]byte, error) {
	body, err := o.fetch(ctx, bounds, model, FormatGTiff)
	if err != nil {
		return nil, err
	}
	if !isTIFF(body) {
		return nil, fmt.Errorf("%w: %q", ErrNotGeoTIFF, truncate(body, 16))
	}
	return body, nil
}

func (o *OpenTopography) fetch(ctx context.Context, bounds geo.Bounds, model dem.HeightModel, format OutputFormat) ([]byte, error) {
	if o.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	reqURL, err := o.RequestURL(bounds, model, format)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting elevation data: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading elevation data: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: %s", ErrProviderStatus, resp.Status, truncate(body, 200))
	}

	logger.Named("provider").Debug("fetched elevation data",
		zap.String("model", model.String()),
		zap.String("format", string(format)),
		zap.Int("bytes", len(body)),
		zap.Duration("took", time.Since(start)))
	return body, nil
}

// isTIFF checks for the little- or big-endian TIFF byte order mark.
func isTIFF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("II*\x00")) || bytes.HasPrefix(b, []byte("MM\x00*"))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
