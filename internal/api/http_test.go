package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bher20/carparkmanager/internal/carparks"
	"github.com/bher20/carparkmanager/internal/cron"
	"github.com/bher20/carparkmanager/internal/storage"
)

var fetchedAt = time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

func sampleSnapshot() *carparks.Snapshot {
	msg := carparks.MaintenanceMessage
	return carparks.NewSnapshot([]carparks.Record{
		{Name: "Parque A", CarSpaces: 120, BikeSpaces: 4, LastUpdated: "2025-06-01 08:29:00"},
		{Name: "Parque B", CarSpaces: 0, LastUpdated: "N/A", UnderMaintenance: true, MaintenanceMessage: &msg},
	}, fetchedAt)
}

func cycleSnapshot(id string) *carparks.Snapshot {
	snap := sampleSnapshot()
	snap.CycleID = id
	return snap
}

type fakeRefresher struct {
	snap   *carparks.Snapshot
	err    error
	status cron.Status
	calls  int
}

func (f *fakeRefresher) RunOnce(context.Context) (*carparks.Snapshot, error) {
	f.calls++
	return f.snap, f.err
}

func (f *fakeRefresher) Status() cron.Status { return f.status }

func newTestRouter(t *testing.T, snap *carparks.Snapshot, opts ...ServerOption) http.Handler {
	t.Helper()
	st := storage.NewMemory()
	if snap != nil {
		require.NoError(t, st.Publish(snap))
	}
	opts = append([]ServerOption{WithLogger(zaptest.NewLogger(t))}, opts...)
	return NewRouter(carparks.NewService(st), opts...)
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestColdStart(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(h, http.MethodGet, "/parking-spaces?carParkName=Parque%20A")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, msgNoSnapshot, decodeError(t, rec))
	assert.Empty(t, rec.Header().Get(SnapshotHeader))

	rec = do(h, http.MethodGet, "/all-carparks")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = do(h, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, msgNoSnapshot, decodeError(t, rec))
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/livez").Code)

	rec = do(h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"snapshot":null}`, rec.Body.String())
}

func TestParkingSpaces(t *testing.T) {
	h := newTestRouter(t, sampleSnapshot())

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantName string
		wantErr  string
	}{
		{name: "exact", target: "/parking-spaces?carParkName=Parque%20A", wantCode: http.StatusOK, wantName: "Parque A"},
		{name: "case-insensitive", target: "/parking-spaces?carParkName=PARQUE%20b", wantCode: http.StatusOK, wantName: "Parque B"},
		{name: "unknown", target: "/parking-spaces?carParkName=Parque%20Z", wantCode: http.StatusNotFound, wantErr: msgNotFound},
		{name: "prefix is not a match", target: "/parking-spaces?carParkName=Parque", wantCode: http.StatusNotFound, wantErr: msgNotFound},
		{name: "missing parameter", target: "/parking-spaces", wantCode: http.StatusBadRequest, wantErr: msgMissingParam},
		{name: "empty parameter", target: "/parking-spaces?carParkName=", wantCode: http.StatusBadRequest, wantErr: msgMissingParam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodGet, tt.target)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeError(t, rec))
				return
			}
			assert.Equal(t, "2025-06-01T08:30:00Z", rec.Header().Get(SnapshotHeader))
			var got carparks.Record
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantName, got.Name)
		})
	}
}

func TestParkingSpaces_MaintenanceShape(t *testing.T) {
	h := newTestRouter(t, sampleSnapshot())

	rec := do(h, http.MethodGet, "/parking-spaces?carParkName=parque%20b")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"name": "Parque B",
		"carSpaces": 0,
		"bikeSpaces": 0,
		"lastUpdated": "N/A",
		"underMaintenance": true,
		"maintenanceMessage": "Car park is under maintenance"
	}`, rec.Body.String())
}

func TestAllCarParks(t *testing.T) {
	h := newTestRouter(t, sampleSnapshot())

	rec := do(h, http.MethodGet, "/all-carparks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-06-01T08:30:00Z", rec.Header().Get(SnapshotHeader))

	var got []carparks.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Parque A", got[0].Name)
	assert.Equal(t, 120, got[0].CarSpaces)
	assert.Nil(t, got[0].MaintenanceMessage)
	assert.Equal(t, "Parque B", got[1].Name)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/readyz").Code)
}

func TestAllCarParks_EmptySnapshot(t *testing.T) {
	h := newTestRouter(t, carparks.NewSnapshot(nil, fetchedAt))

	rec := do(h, http.MethodGet, "/all-carparks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStatus_WithScheduler(t *testing.T) {
	last := fetchedAt
	ref := &fakeRefresher{status: cron.Status{
		Phase:               cron.PhasePublished,
		CyclesRun:           4,
		ConsecutiveFailures: 0,
		LastSuccessAt:       &last,
	}}
	h := newTestRouter(t, sampleSnapshot(), WithRefresher(ref))

	rec := do(h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Scheduler)
	assert.Equal(t, cron.PhasePublished, got.Scheduler.Phase)
	assert.Equal(t, uint64(4), got.Scheduler.CyclesRun)
	require.NotNil(t, got.Snapshot)
	assert.Equal(t, 2, got.Snapshot.Records)
	assert.True(t, fetchedAt.Equal(got.Snapshot.FetchedAt))
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name     string
		ref      *fakeRefresher
		wantCode int
		wantBody string
	}{
		{
			name:     "published",
			ref:      &fakeRefresher{snap: cycleSnapshot("c-9"), status: cron.Status{CycleID: "c-10"}},
			wantCode: http.StatusOK,
			wantBody: `"cycleId":"c-9"`,
		},
		{
			name:     "in progress",
			ref:      &fakeRefresher{err: cron.ErrCycleInProgress},
			wantCode: http.StatusConflict,
			wantBody: cron.ErrCycleInProgress.Error(),
		},
		{
			name:     "upstream failure",
			ref:      &fakeRefresher{err: errors.New("refresh cycle failed after 3 attempt(s): upstream returned status 500")},
			wantCode: http.StatusBadGateway,
			wantBody: "status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(t, nil, WithRefresher(tt.ref))
			rec := do(h, http.MethodPost, "/refresh")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.Equal(t, 1, tt.ref.calls)
		})
	}
}

func TestRefresh_ReportsPublishedCycle(t *testing.T) {
	// A later cycle may already own the scheduler status by the time the
	// response is written.
	ref := &fakeRefresher{snap: cycleSnapshot("c-1"), status: cron.Status{CycleID: "c-2", Phase: cron.PhaseFetching}}
	h := newTestRouter(t, nil, WithRefresher(ref))

	rec := do(h, http.MethodPost, "/refresh")
	require.Equal(t, http.StatusOK, rec.Code)

	var got RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "c-1", got.CycleID)
	assert.Equal(t, 2, got.Snapshot.Records)
}

func TestRouting(t *testing.T) {
	h := newTestRouter(t, sampleSnapshot())

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/refresh").Code, "refresh is only mounted with a refresher")
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodPost, "/all-carparks").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/nope").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/swagger/openapi.yaml").Code)

	do(h, http.MethodGet, "/all-carparks")
	rec := do(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `carparkmanager_requests_total{path="/all-carparks"}`))
}
