package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	delhi := Point{Lat: 28.6139, Lon: 77.2090}
	mumbai := Point{Lat: 19.0760, Lon: 72.8777}

	d := Distance(delhi, mumbai)
	// Great-circle Delhi to Mumbai is roughly 1150 km.
	assert.InDelta(t, 1_150_000, d, 30_000)

	assert.Zero(t, Distance(delhi, delhi))
	assert.InDelta(t, Distance(delhi, mumbai), Distance(mumbai, delhi), 1e-6)
}

func TestDistanceShortHop(t *testing.T) {
	// One hundredth of a degree of latitude is about 1.11 km.
	a := Point{Lat: 19.00, Lon: 72.80}
	b := Point{Lat: 19.01, Lon: 72.80}
	assert.InDelta(t, 1112, Distance(a, b), 5)
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		name  string
		p     Point
		valid bool
	}{
		{"origin", Point{0, 0}, true},
		{"bounds", Point{90, 180}, true},
		{"negative bounds", Point{-90, -180}, true},
		{"lat too high", Point{90.001, 0}, false},
		{"lat too low", Point{-95, 0}, false},
		{"lon too high", Point{0, 180.5}, false},
		{"lon too low", Point{0, -181}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.p.Valid())
		})
	}
}

func TestCellKey(t *testing.T) {
	assert.Equal(t, "28.61:77.21", CellKey(Point{Lat: 28.6139, Lon: 77.2090}))
	assert.Equal(t, "19.08:72.88", CellKey(Point{Lat: 19.0760, Lon: 72.8777}))

	// Nearby points share a cell; distant ones do not.
	assert.Equal(t,
		CellKey(Point{Lat: 19.0761, Lon: 72.8778}),
		CellKey(Point{Lat: 19.0769, Lon: 72.8771}))
	assert.NotEqual(t,
		CellKey(Point{Lat: 19.07, Lon: 72.88}),
		CellKey(Point{Lat: 19.17, Lon: 72.88}))
}
