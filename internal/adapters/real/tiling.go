// Package real implements dataset adapters backed by S3-hosted GeoTIFF
// rasters, selected in place of the mock adapters when USE_REAL_DATA=true.
package real

import (
	"fmt"
	"math"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

// tilesOverlappingBbox returns the 1x1 degree tile keys a bbox spans, using
// the same naming convention as the Copernicus GLO-90 distribution
// (floor(lat)_floor(lon)).
func tilesOverlappingBbox(bb model.BBox) []string {
	minLat := int(math.Floor(bb.MinLat))
	maxLat := int(math.Floor(bb.MaxLat))
	minLon := int(math.Floor(bb.MinLon))
	maxLon := int(math.Floor(bb.MaxLon))

	var keys []string
	for lat := minLat; lat <= maxLat; lat++ {
		for lon := minLon; lon <= maxLon; lon++ {
			keys = append(keys, tileKey(lat, lon))
		}
	}
	return keys
}

func tileKeyForPoint(lat, lon float64) string {
	return tileKey(int(math.Floor(lat)), int(math.Floor(lon)))
}

func tileKey(lat, lon int) string {
	ns := "N"
	if lat < 0 {
		ns = "S"
		lat = -lat
	}
	ew := "E"
	if lon < 0 {
		ew = "W"
		lon = -lon
	}
	return fmt.Sprintf("%s%02d_%s%03d", ns, lat, ew, lon)
}
