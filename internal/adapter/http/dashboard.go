package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/engine"
)

const maxBodyBytes = 64 << 10

// Refresher runs a bulk prediction refresh.
type Refresher interface {
	Refresh(ctx context.Context, ids []string) ([]domain.ZonePrediction, error)
}

// Dashboard serves the /api/v1 routes.
type Dashboard struct {
	engine    *engine.Engine
	refresher Refresher
	logger    *slog.Logger
}

// NewDashboard creates the dashboard API.
func NewDashboard(e *engine.Engine, refresher Refresher, logger *slog.Logger) *Dashboard {
	return &Dashboard{engine: e, refresher: refresher, logger: logger}
}

// ZoneView is a zone with its derived figures and current assessment.
type ZoneView struct {
	domain.Zone
	EstimatedAffected int               `json:"estimatedAffected"`
	RouteColor        string            `json:"routeColor"`
	Assessment        domain.Assessment `json:"assessment"`
}

// PredictionView is the response to any prediction update.
type PredictionView struct {
	Prediction domain.ZonePrediction `json:"prediction"`
	Assessment domain.Assessment     `json:"assessment"`
}

// RefreshView reports a bulk refresh.
type RefreshView struct {
	Updated []domain.ZonePrediction `json:"updated"`
	Errors  []string                `json:"errors"`
}

// Routes registers the dashboard API on r.
func (d *Dashboard) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/zones", d.handleZones)
		r.Get("/zones.geojson", d.handleGeoJSON)
		r.Get("/zones/{id}", d.handleZone)
		r.Post("/zones/{id}/predict", d.handlePredict)
		r.Post("/predictions", d.handleEvent)
		r.Post("/predictions/refresh", d.handleRefresh)
		r.Get("/locate", d.handleLocate)
		r.Get("/summary", d.handleSummary)
	})
}

func (d *Dashboard) zoneView(z domain.Zone) ZoneView {
	a, _ := d.engine.Assess(z.ID)
	return ZoneView{
		Zone:              z,
		EstimatedAffected: z.EstimatedAffected(),
		RouteColor:        z.RouteColor(),
		Assessment:        a,
	}
}

func (d *Dashboard) handleZones(w http.ResponseWriter, _ *http.Request) {
	zones := d.engine.Registry().All()
	views := make([]ZoneView, 0, len(zones))
	for _, z := range zones {
		views = append(views, d.zoneView(z))
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"zones": views})
}

func (d *Dashboard) handleGeoJSON(w http.ResponseWriter, _ *http.Request) {
	data, err := d.engine.Registry().GeoJSON().MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode geojson")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // client may have gone away
}

func (d *Dashboard) handleZone(w http.ResponseWriter, r *http.Request) {
	z, err := d.engine.Registry().ByID(chi.URLParam(r, "id"))
	if err != nil {
		d.writeDomainError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, d.zoneView(z))
}

func (d *Dashboard) handlePredict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	zp, err := d.engine.PredictZone(r.Context(), id)
	if err != nil {
		d.writeDomainError(w, err)
		return
	}
	a, _ := d.engine.Assess(id)
	sharedobs.WriteJSON(w, http.StatusOK, PredictionView{Prediction: zp, Assessment: a})
}

func (d *Dashboard) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.PredictionEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if ev.ZoneID == "" {
		writeError(w, http.StatusBadRequest, "missing zoneId")
		return
	}

	zp, err := d.engine.ApplyEvent(r.Context(), ev)
	if err != nil {
		d.writeDomainError(w, err)
		return
	}
	a, _ := d.engine.Assess(ev.ZoneID)
	sharedobs.WriteJSON(w, http.StatusOK, PredictionView{Prediction: zp, Assessment: a})
}

func (d *Dashboard) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ZoneIDs []string `json:"zoneIds"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	preds, err := d.refresher.Refresh(r.Context(), req.ZoneIDs)
	view := RefreshView{Updated: preds, Errors: []string{}}
	var multi domain.MultiError
	switch {
	case errors.As(err, &multi):
		for _, e := range multi.Errors {
			view.Errors = append(view.Errors, e.Error())
		}
	case err != nil:
		view.Errors = append(view.Errors, err.Error())
	}
	if len(view.Errors) > 0 {
		d.logger.Warn("bulk refresh finished with errors", "errors", len(view.Errors), "updated", len(preds))
	}
	sharedobs.WriteJSON(w, http.StatusOK, view)
}

func (d *Dashboard) handleLocate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	latStr, lonStr := q.Get("lat"), q.Get("lon")

	var (
		loc engine.Location
		err error
	)
	if latStr == "" && lonStr == "" {
		loc, err = d.engine.LocateIP(r.Context(), clientIP(r))
	} else {
		p, perr := parseCoordinate(latStr, lonStr)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		loc, err = d.engine.Locate(r.Context(), p)
	}
	if err != nil {
		d.writeDomainError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, loc)
}

func (d *Dashboard) handleSummary(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, d.engine.Assessments())
}

func (d *Dashboard) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrZoneNotFound):
		writeError(w, http.StatusNotFound, "zone not found")
	case errors.Is(err, domain.ErrOutsideZones):
		writeError(w, http.StatusNotFound, "fuera de las zonas registradas")
	case errors.Is(err, domain.ErrGeolocationUnavailable):
		writeError(w, http.StatusServiceUnavailable, "geolocalización no disponible")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request canceled")
	default:
		d.logger.Error("dashboard request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

var errBadCoordinate = errors.New("lat and lon must both be valid numbers")

func parseCoordinate(latStr, lonStr string) (domain.Coordinate, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return domain.Coordinate{}, errBadCoordinate
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		return domain.Coordinate{}, errBadCoordinate
	}
	return domain.Coordinate{Lat: lat, Lon: lon}, nil
}

func clientIP(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
