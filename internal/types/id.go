// README: Common identifier and geographic value objects used across modules.
package types

type ID string

type Point struct {
	Lat float64
	Lng float64
}

// HasCoordinates reports whether both components are set. A zero latitude or
// longitude is treated as "unknown" rather than as a real position.
func (p Point) HasCoordinates() bool {
	return p.Lat != 0 && p.Lng != 0
}

// Location is a resolved geocoordinate plus the free-text address shown to users.
type Location struct {
	Point
	Address string
}
