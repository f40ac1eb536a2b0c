package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/carparkmanager/internal/cron"
)

// SnapshotInfo summarizes the published snapshot.
type SnapshotInfo struct {
	Records   int       `json:"records"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Scheduler *cron.Status  `json:"scheduler,omitempty"`
	Snapshot  *SnapshotInfo `json:"snapshot"`
}

// RefreshResponse is the body of a successful POST /refresh.
type RefreshResponse struct {
	Status   string       `json:"status"`
	CycleID  string       `json:"cycleId,omitempty"`
	Snapshot SnapshotInfo `json:"snapshot"`
}

// handleStatus reports scheduler and snapshot state
// @Summary Refresh status
// @Tags operations
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /status [get]
func (s *server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var resp StatusResponse
	if s.refresher != nil {
		st := s.refresher.Status()
		resp.Scheduler = &st
	}
	if snap, err := s.svc.Snapshot(); err == nil {
		resp.Snapshot = &SnapshotInfo{Records: snap.Len(), FetchedAt: snap.FetchedAt}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh runs one refresh cycle synchronously
// @Summary Trigger a refresh
// @Tags operations
// @Produce json
// @Success 200 {object} RefreshResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /refresh [post]
func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.refresher.RunOnce(r.Context())
	switch {
	case errors.Is(err, cron.ErrCycleInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Warn("api: manual refresh failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	setSnapshotHeader(w, snap.FetchedAt)
	writeJSON(w, http.StatusOK, RefreshResponse{
		Status:   "published",
		CycleID:  snap.CycleID,
		Snapshot: SnapshotInfo{Records: snap.Len(), FetchedAt: snap.FetchedAt},
	})
}
