package engine

import "strconv"

// GeoResolver maps a caller IP to coordinates. The production resolver
// is an external collaborator; StaticGeoResolver ships for tests and
// fixed deployments.
type GeoResolver interface {
	Resolve(ip string) (lat, lng float64, ok bool)
}

// StaticGeoResolver resolves from a fixed ip -> [lat, lng] table.
type StaticGeoResolver map[string][2]float64

func (r StaticGeoResolver) Resolve(ip string) (float64, float64, bool) {
	coords, ok := r[ip]
	if !ok {
		return 0, 0, false
	}
	return coords[0], coords[1], true
}

// GeoSort builds the chapters sort chain for a resolved caller
// location: nearest first, recency as tie-break.
func GeoSort(lat, lng float64) string {
	return "_geoloc(" + formatCoord(lat) + "," + formatCoord(lng) + "):asc, updated_at:desc"
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
