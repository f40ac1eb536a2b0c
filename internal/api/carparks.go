package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bher20/carparkmanager/internal/carparks"
)

const (
	msgNoSnapshot   = "car park data is not available yet"
	msgNotFound     = "car park not found"
	msgMissingParam = "carParkName query parameter is required"
)

// handleParkingSpaces returns one car park by name
// @Summary Get parking spaces for a car park
// @Description Case-insensitive exact match on the car park name; the first match in feed order wins
// @Tags carparks
// @Produce json
// @Param carParkName query string true "Car park name"
// @Success 200 {object} carparks.Record
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /parking-spaces [get]
func (s *server) handleParkingSpaces(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("carParkName")
	if strings.TrimSpace(name) == "" {
		writeError(w, http.StatusBadRequest, msgMissingParam)
		return
	}

	rec, fetchedAt, err := s.svc.FindByName(name)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}

	setSnapshotHeader(w, fetchedAt)
	writeJSON(w, http.StatusOK, rec)
}

// handleAllCarParks lists every car park of the current snapshot
// @Summary List all car parks
// @Tags carparks
// @Produce json
// @Success 200 {array} carparks.Record
// @Failure 503 {object} ErrorResponse
// @Router /all-carparks [get]
func (s *server) handleAllCarParks(w http.ResponseWriter, _ *http.Request) {
	records, fetchedAt, err := s.svc.ListAll()
	if err != nil {
		s.writeQueryError(w, err)
		return
	}

	setSnapshotHeader(w, fetchedAt)
	writeJSON(w, http.StatusOK, records)
}

func (s *server) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, carparks.ErrNoSnapshot):
		writeError(w, http.StatusServiceUnavailable, msgNoSnapshot)
	case errors.Is(err, carparks.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	default:
		s.log.Error("api: query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
