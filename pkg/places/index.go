package places

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/mmcloughlin/geohash"
	h3 "github.com/uber/h3-go/v4"

	"roadscout/pkg/geo"
	"roadscout/pkg/model"
)

// cellResolution picks the coarseness of the deterministic seed cell.
// Resolution 5 cells are ~8km across, so a vehicle moving through town
// keeps seeing the same nearby set instead of a reshuffle on every fix.
const cellResolution = 5

const (
	idPrecision = 8
	spreadM     = 3000
)

var fuelBrands = []string{
	"HP Fuel", "Shell", "IndianOil", "BPCL Energy", "Nayara", "Reliance Fuel",
}

var parkingNames = []string{
	"City Center Parking", "Station Road Lot", "Market Square Garage",
	"Lakeside Parking", "Metro Plaza Lot", "Old Town Garage", "Harbour Deck",
}

// Index serves synthetic fuel stations and parking lots around a
// position. Generation is deterministic per H3 cell: the same area always
// yields the same places with the same IDs.
type Index struct {
	mu    sync.Mutex
	cells map[h3.Cell][]model.Marker
}

// NewIndex creates an empty place index.
func NewIndex() *Index {
	return &Index{cells: make(map[h3.Cell][]model.Marker)}
}

// Nearby returns places within radiusM of the position, sorted nearest
// first. limit <= 0 means no limit.
func (ix *Index) Nearby(lat, lon, radiusM float64, limit int) ([]model.Marker, error) {
	if !geo.Valid(lat, lon) {
		return nil, fmt.Errorf("invalid position %f,%f", lat, lon)
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), cellResolution)
	if err != nil {
		return nil, fmt.Errorf("resolving cell: %w", err)
	}
	ring, err := h3.GridDisk(cell, 1)
	if err != nil {
		// The lone cell still gives a usable answer near pentagon
		// distortions.
		slog.Debug("Grid disk failed, using single cell", "error", err)
		ring = []h3.Cell{cell}
	}

	origin := geo.Point{Lat: lat, Lon: lon}
	var out []model.Marker
	for _, c := range ring {
		for _, m := range ix.markersForCell(c) {
			d := geo.Distance(origin, geo.Point{Lat: m.Lat, Lon: m.Lon})
			if radiusM > 0 && d > radiusM {
				continue
			}
			out = append(out, m)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		di := geo.Distance(origin, geo.Point{Lat: out[i].Lat, Lon: out[i].Lon})
		dj := geo.Distance(origin, geo.Point{Lat: out[j].Lat, Lon: out[j].Lon})
		return di < dj
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (ix *Index) markersForCell(c h3.Cell) []model.Marker {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if m, ok := ix.cells[c]; ok {
		return m
	}
	m := generateCell(c)
	ix.cells[c] = m
	return m
}

// generateCell synthesizes the places of one cell from a seed derived
// from the cell index, so regeneration is exact.
func generateCell(c h3.Cell) []model.Marker {
	center, err := h3.CellToLatLng(c)
	if err != nil {
		return nil
	}
	rng := rand.New(rand.NewSource(int64(c)))
	origin := geo.Point{Lat: center.Lat, Lon: center.Lng}

	var out []model.Marker
	nFuel := 4 + rng.Intn(4)
	for i := 0; i < nFuel; i++ {
		p := scatter(rng, origin)
		out = append(out, model.Marker{
			ID:       "fuel-" + geohash.EncodeWithPrecision(p.Lat, p.Lon, idPrecision),
			Lat:      p.Lat,
			Lon:      p.Lon,
			Category: model.CategoryFuel,
			Label:    fuelBrands[rng.Intn(len(fuelBrands))],
			Rating:   round1(3 + rng.Float64()*2),
			// Fuel pricing barely varies within a city.
			PriceLevel: 2,
		})
	}
	nParking := 5 + rng.Intn(5)
	for i := 0; i < nParking; i++ {
		p := scatter(rng, origin)
		out = append(out, model.Marker{
			ID:         "parking-" + geohash.EncodeWithPrecision(p.Lat, p.Lon, idPrecision),
			Lat:        p.Lat,
			Lon:        p.Lon,
			Category:   model.CategoryParking,
			Label:      parkingNames[rng.Intn(len(parkingNames))],
			Rating:     round1(2.5 + rng.Float64()*2.5),
			PriceLevel: 1 + rng.Intn(3),
		})
	}
	return out
}

func scatter(rng *rand.Rand, origin geo.Point) geo.Point {
	bearing := rng.Float64() * 360
	dist := 200 + rng.Float64()*spreadM
	return geo.DestinationPoint(origin, dist, bearing)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
