package export

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/demterrain/pkg/terrain"
)

// quantize maps a [0, 1] height to the full uint16 range.
func quantize(v float32) uint16 {
	return uint16(math.Round(float64(min(max(v, 0), 1)) * math.MaxUint16))
}

// HeightmapImage converts hm into a 16-bit grayscale image; heightmap row 0
// is image row 0.
func HeightmapImage(hm *terrain.Heightmap) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, hm.Resolution, hm.Resolution))
	for row := 0; row < hm.Resolution; row++ {
		for col := 0; col < hm.Resolution; col++ {
			img.SetGray16(col, row, color.Gray16{Y: quantize(hm.At(row, col))})
		}
	}
	return img
}

// WriteHeightmapTIFF writes hm as a deflate-compressed 16-bit TIFF.
func WriteHeightmapTIFF(w io.Writer, hm *terrain.Heightmap) error {
	return tiff.Encode(w, HeightmapImage(hm), &tiff.Options{
		Compression: tiff.Deflate,
		Predictor:   true,
	})
}

// WriteHeightmapR16 writes hm as headerless little-endian uint16 samples,
// the raw layout terrain importers expect.
func WriteHeightmapR16(w io.Writer, hm *terrain.Heightmap) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 2)
	for _, v := range hm.Heights {
		binary.LittleEndian.PutUint16(buf, quantize(v))
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteHeightmap writes hm to dir as heightmap.tif or heightmap.r16.
func WriteHeightmap(dir, format string, hm *terrain.Heightmap) (string, error) {
	var (
		name  string
		write func(io.Writer, *terrain.Heightmap) error
	)
	switch format {
	case "tiff":
		name, write = "heightmap.tif", WriteHeightmapTIFF
	case "r16":
		name, write = "heightmap.r16", WriteHeightmapR16
	default:
		return "", fmt.Errorf("unsupported heightmap format %q", format)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := writeFile(path, func(w io.Writer) error { return write(w, hm) }); err != nil {
		return "", err
	}
	return path, nil
}

// HeightmapMeta is the sidecar a consumer needs to rescale [0, 1] heights.
type HeightmapMeta struct {
	Resolution       int     `yaml:"resolution"`
	MinElevation     float64 `yaml:"min_elevation"`
	MaxElevation     float64 `yaml:"max_elevation"`
	VerticalRange    float64 `yaml:"vertical_range"`
	HorizontalExtent float64 `yaml:"horizontal_extent"`
	File             string  `yaml:"file"`
}

// WriteHeightmapMeta writes the YAML sidecar next to a heightmap file.
func WriteHeightmapMeta(heightmapPath string, hm *terrain.Heightmap) (string, error) {
	meta := HeightmapMeta{
		Resolution:       hm.Resolution,
		MinElevation:     hm.MinElevation,
		MaxElevation:     hm.MaxElevation,
		VerticalRange:    hm.VerticalRange,
		HorizontalExtent: hm.HorizontalExtent,
		File:             filepath.Base(heightmapPath),
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return "", err
	}

	path := heightmapPath + ".yaml"
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
