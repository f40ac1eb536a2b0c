package carparks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	snap *Snapshot
}

func (s *staticSource) Current() (*Snapshot, bool) { return s.snap, s.snap != nil }

func newTestService(records ...Record) (*Service, *staticSource) {
	src := &staticSource{snap: NewSnapshot(records, time.Unix(1700000000, 0))}
	return NewService(src), src
}

func TestService_ColdStart(t *testing.T) {
	svc := NewService(&staticSource{})

	_, _, err := svc.FindByName("Aberdeen")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	list, _, err := svc.ListAll()
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.Nil(t, list)

	_, err = svc.Snapshot()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestService_FindByNameIsCaseInsensitive(t *testing.T) {
	svc, _ := newTestService(
		Record{Name: "Aberdeen", CarSpaces: 10},
		Record{Name: "Tap Seac", CarSpaces: 20},
	)

	for _, q := range []string{"aberdeen", "ABERDEEN", "Aberdeen", "aBeRdEeN"} {
		r, _, err := svc.FindByName(q)
		require.NoError(t, err, q)
		assert.Equal(t, "Aberdeen", r.Name)
		assert.Equal(t, 10, r.CarSpaces)
	}

	r, _, err := svc.FindByName("tap seac")
	require.NoError(t, err)
	assert.Equal(t, 20, r.CarSpaces)
}

func TestService_FindByNameUnicodeFolding(t *testing.T) {
	svc, _ := newTestService(Record{Name: "Estação Central", CarSpaces: 4})

	r, _, err := svc.FindByName("ESTAÇÃO CENTRAL")
	require.NoError(t, err)
	assert.Equal(t, 4, r.CarSpaces)
}

func TestService_FindByNameIsExact(t *testing.T) {
	svc, _ := newTestService(Record{Name: "Parque A"})

	for _, q := range []string{"Parque", "Parque A ", "", "Parque AB"} {
		_, _, err := svc.FindByName(q)
		assert.ErrorIs(t, err, ErrNotFound, "query %q", q)
	}
}

func TestService_FindByNameReturnsFirstDuplicate(t *testing.T) {
	svc, _ := newTestService(
		Record{Name: "Dup", CarSpaces: 1},
		Record{Name: "dup", CarSpaces: 2},
	)

	r, _, err := svc.FindByName("DUP")
	require.NoError(t, err)
	assert.Equal(t, 1, r.CarSpaces)
}

func TestService_FindByNameWithoutIndex(t *testing.T) {
	src := &staticSource{snap: &Snapshot{Records: []Record{{Name: "Literal", CarSpaces: 9}}}}
	svc := NewService(src)

	r, _, err := svc.FindByName("literal")
	require.NoError(t, err)
	assert.Equal(t, 9, r.CarSpaces)
}

func TestService_ListAll(t *testing.T) {
	svc, src := newTestService(Record{Name: "A"}, Record{Name: "B"}, Record{Name: "A"})

	list, _, err := svc.ListAll()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"A", "B", "A"}, []string{list[0].Name, list[1].Name, list[2].Name})

	// Callers get their own slice.
	list[0].Name = "mutated"
	assert.Equal(t, "A", src.snap.Records[0].Name)
}

func TestService_ListAllEmptySnapshot(t *testing.T) {
	svc, _ := newTestService()

	list, _, err := svc.ListAll()
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestService_ReportsSnapshotTime(t *testing.T) {
	svc, src := newTestService(Record{Name: "A"})

	_, at, err := svc.FindByName("a")
	require.NoError(t, err)
	assert.True(t, src.snap.FetchedAt.Equal(at))

	_, at, err = svc.FindByName("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, src.snap.FetchedAt.Equal(at))

	_, at, err = svc.ListAll()
	require.NoError(t, err)
	assert.True(t, src.snap.FetchedAt.Equal(at))
}

func TestService_ResultsDoNotAliasSnapshot(t *testing.T) {
	msg := MaintenanceMessage
	svc, src := newTestService(Record{Name: "A", UnderMaintenance: true, MaintenanceMessage: &msg})

	list, _, err := svc.ListAll()
	require.NoError(t, err)
	require.NotNil(t, list[0].MaintenanceMessage)
	*list[0].MaintenanceMessage = "changed by caller"

	r, _, err := svc.FindByName("a")
	require.NoError(t, err)
	require.NotNil(t, r.MaintenanceMessage)
	*r.MaintenanceMessage = "changed again"

	assert.Equal(t, MaintenanceMessage, *src.snap.Records[0].MaintenanceMessage)
	again, _, err := svc.FindByName("A")
	require.NoError(t, err)
	assert.Equal(t, MaintenanceMessage, *again.MaintenanceMessage)
}
