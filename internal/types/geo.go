package types

// Point is a WGS-84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the point was never set.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// Location is a human-readable address with its coordinates.
type Location struct {
	Address string `json:"address"`
	Point   Point  `json:"coordinates"`
}
