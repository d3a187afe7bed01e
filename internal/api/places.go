package api

import (
	"net/http"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"roadscout/pkg/config"
	"roadscout/pkg/geo"
	"roadscout/pkg/places"
	"roadscout/pkg/sampler"
)

// PlacesHandler serves nearby fuel and parking as GeoJSON.
type PlacesHandler struct {
	index   *places.Index
	sampler *sampler.Sampler
	cfg     config.PlacesConfig
}

func NewPlacesHandler(ix *places.Index, s *sampler.Sampler, cfg config.PlacesConfig) *PlacesHandler {
	return &PlacesHandler{index: ix, sampler: s, cfg: cfg}
}

func (h *PlacesHandler) Handle(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := h.origin(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "no position fix and no lat/lon given")
		return
	}
	if !geo.Valid(lat, lon) {
		writeError(w, http.StatusBadRequest, "invalid coordinates")
		return
	}

	radius := h.cfg.Radius.Meters()
	if v := r.URL.Query().Get("radius"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, http.StatusBadRequest, "invalid radius")
			return
		}
		radius = f
	}
	limit := h.cfg.MaxResults
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	markers, err := h.index.Nearby(lat, lon, radius, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	fc := geojson.NewFeatureCollection()
	origin := geo.Point{Lat: lat, Lon: lon}
	for _, m := range markers {
		f := geojson.NewFeature(orb.Point{m.Lon, m.Lat})
		f.ID = m.ID
		f.Properties = geojson.Properties{
			"category":   m.Category,
			"label":      m.Label,
			"rating":     m.Rating,
			"priceLevel": m.PriceLevel,
			"distanceM":  geo.Distance(origin, geo.Point{Lat: m.Lat, Lon: m.Lon}),
		}
		fc.Append(f)
	}
	writeJSON(w, fc)
}

// origin resolves the query position, preferring explicit lat/lon over
// the current fix.
func (h *PlacesHandler) origin(r *http.Request) (lat, lon float64, ok bool) {
	q := r.URL.Query()
	if q.Get("lat") != "" || q.Get("lon") != "" {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
		if latErr != nil || lonErr != nil {
			return 0, 0, false
		}
		return lat, lon, true
	}
	if pos, got := h.sampler.Current(); got {
		return pos.Lat, pos.Lon, true
	}
	return 0, 0, false
}
