package dem

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MaxASCIISamples bounds the sample count a header may declare.
const MaxASCIISamples = 1 << 28

// preallocSamples caps the sample buffer reserved before any data is read.
const preallocSamples = 1 << 20

// ASCII grid errors.
var (
	ErrInvalidASCIIHeader = errors.New("invalid ASCII grid header")
	ErrTruncatedASCIIData = errors.New("truncated ASCII grid data")
)

// ASCIIHeader holds the metadata block of an Esri ASCII grid.
type ASCIIHeader struct {
	Cols      int
	Rows      int
	XLL       float64 // Longitude (or easting) of the lower-left corner or center
	YLL       float64 // Latitude (or northing) of the lower-left corner or center
	Centered  bool    // XLL/YLL refer to the center of the lower-left cell
	CellSize  float64 // In source units (degrees for geographic grids)
	NoData    float64
	HasNoData bool
}

// Extent returns the outer edges of the grid in source units.
func (h ASCIIHeader) Extent() (west, south, east, north float64) {
	west, south = h.XLL, h.YLL
	if h.Centered {
		west -= h.CellSize / 2
		south -= h.CellSize / 2
	}
	east = west + float64(h.Cols)*h.CellSize
	north = south + float64(h.Rows)*h.CellSize
	return west, south, east, north
}

// ParseASCIIGrid reads an Esri ASCII grid. Samples are stored north row
// first, matching the file. The geometric cell size comes from the height
// model, since provider grids carry their cell size in degrees.
func ParseASCIIGrid(r io.Reader, model HeightModel) (*Grid, *ASCIIHeader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	hdr, first, err := parseASCIIHeader(sc)
	if err != nil {
		return nil, nil, err
	}

	count := hdr.Cols * hdr.Rows
	heights := make([]float32, 0, min(count, preallocSamples))
	token, haveToken := first, first != ""
	for len(heights) < count {
		if !haveToken {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return nil, nil, fmt.Errorf("reading samples: %w", err)
				}
				return nil, nil, fmt.Errorf("%w: got %d of %d samples", ErrTruncatedASCIIData, len(heights), count)
			}
			token = sc.Text()
		}
		haveToken = false

		v, err := strconv.ParseFloat(token, 32)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing sample %d: %w", len(heights), err)
		}
		heights = append(heights, float32(v))
	}

	var opts []GridOption
	if hdr.HasNoData {
		opts = append(opts, WithNoData(float32(hdr.NoData)))
	}
	g, err := NewGrid(hdr.Rows, hdr.Cols, model.GridSize(), heights, opts...)
	if err != nil {
		return nil, nil, err
	}
	return g, hdr, nil
}

// parseASCIIHeader consumes "key value" pairs until the first numeric token,
// which is returned as the first sample.
func parseASCIIHeader(sc *bufio.Scanner) (*ASCIIHeader, string, error) {
	hdr := &ASCIIHeader{}
	seen := make(map[string]bool)

	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			if err := checkASCIIHeader(hdr, seen); err != nil {
				return nil, "", err
			}
			return hdr, key, nil
		}
		if !sc.Scan() {
			return nil, "", fmt.Errorf("%w: missing value for %s", ErrInvalidASCIIHeader, key)
		}
		value := sc.Text()

		var err error
		switch key {
		case "ncols":
			hdr.Cols, err = strconv.Atoi(value)
		case "nrows":
			hdr.Rows, err = strconv.Atoi(value)
		case "xllcorner", "xllcenter":
			hdr.XLL, err = strconv.ParseFloat(value, 64)
		case "yllcorner", "yllcenter":
			hdr.YLL, err = strconv.ParseFloat(value, 64)
		case "cellsize":
			hdr.CellSize, err = strconv.ParseFloat(value, 64)
		case "nodata_value":
			hdr.NoData, err = strconv.ParseFloat(value, 64)
			hdr.HasNoData = true
		default:
			return nil, "", fmt.Errorf("%w: unknown key %q", ErrInvalidASCIIHeader, key)
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s: %v", ErrInvalidASCIIHeader, key, err)
		}
		seen[key] = true
		seen[strings.TrimSuffix(strings.TrimSuffix(key, "corner"), "center")] = true
	}
	if err := sc.Err(); err != nil {
		return nil, "", fmt.Errorf("reading header: %w", err)
	}
	if err := checkASCIIHeader(hdr, seen); err != nil {
		return nil, "", err
	}
	// Header without any samples.
	return nil, "", fmt.Errorf("%w: no samples", ErrTruncatedASCIIData)
}

func checkASCIIHeader(hdr *ASCIIHeader, seen map[string]bool) error {
	for _, key := range []string{"ncols", "nrows"} {
		if !seen[key] {
			return fmt.Errorf("%w: missing %s", ErrInvalidASCIIHeader, key)
		}
	}
	if hdr.Cols <= 0 || hdr.Rows <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidASCIIHeader, hdr.Cols, hdr.Rows)
	}
	if hdr.Cols > MaxASCIISamples/hdr.Rows {
		return fmt.Errorf("%w: %dx%d exceeds %d samples", ErrInvalidASCIIHeader, hdr.Cols, hdr.Rows, MaxASCIISamples)
	}

	// Both axes share one registration.
	if (seen["xllcenter"] && seen["yllcorner"]) || (seen["xllcorner"] && seen["yllcenter"]) {
		return fmt.Errorf("%w: mixed corner and center registration", ErrInvalidASCIIHeader)
	}
	hdr.Centered = seen["xllcenter"] || seen["yllcenter"]
	return nil
}

// ParseASCIIGridFile reads an ASCII grid from disk. Files ending in .gz are
// decompressed on the fly.
func ParseASCIIGridFile(path string, model HeightModel) (*Grid, *ASCIIHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening ASCII grid: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return ParseASCIIGrid(r, model)
}
