package dem

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownHeightModel is returned when a height model name is not recognized.
var ErrUnknownHeightModel = errors.New("unknown height model")

// HeightModel identifies a global DEM product.
type HeightModel int

// Supported height models.
const (
	SRTMGL3 HeightModel = iota // SRTM 90m
	SRTMGL1                    // SRTM 30m
	SRTMGL1E                   // SRTM 30m ellipsoidal
	AW3D30                     // ALOS World 3D 30m
	AW3D30E                    // ALOS World 3D 30m ellipsoidal
	SRTM15Plus                 // Global bathymetry + topography 500m
	NASADEM                    // NASADEM 30m
	COP30                      // Copernicus 30m
	COP90                      // Copernicus 90m
	EUDTM                      // Continental Europe DTM 30m
	GEDIL3                     // GEDI L3 1km
)

type heightModelInfo struct {
	apiRef   string
	gridSize float64
}

var heightModels = map[HeightModel]heightModelInfo{
	SRTMGL3:    {"SRTMGL3", 90},
	SRTMGL1:    {"SRTMGL1", 30},
	SRTMGL1E:   {"SRTMGL1_E", 30},
	AW3D30:     {"AW3D30", 30},
	AW3D30E:    {"AW3D30_E", 30},
	SRTM15Plus: {"SRTM15Plus", 500},
	NASADEM:    {"NASADEM", 30},
	COP30:      {"COP30", 30},
	COP90:      {"COP90", 90},
	EUDTM:      {"EU_DTM", 30},
	GEDIL3:     {"GEDI_L3", 1000},
}

// APIReference returns the provider's identifier for the model.
func (m HeightModel) APIReference() string {
	if info, ok := heightModels[m]; ok {
		return info.apiRef
	}
	return ""
}

// GridSize returns the sample spacing of the model in meters.
func (m HeightModel) GridSize() float64 {
	return heightModels[m].gridSize
}

// String returns the provider identifier, or Unknown(n).
func (m HeightModel) String() string {
	if ref := m.APIReference(); ref != "" {
		return ref
	}
	return fmt.Sprintf("Unknown(%d)", int(m))
}

// ParseHeightModel resolves a provider identifier (case-insensitive).
func ParseHeightModel(s string) (HeightModel, error) {
	for m, info := range heightModels {
		if strings.EqualFold(info.apiRef, s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownHeightModel, s)
}
