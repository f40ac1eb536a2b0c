package carparks

import (
	"time"

	"golang.org/x/text/cases"
)

// MaintenanceMessage is reported for every car park flagged as under maintenance.
const MaintenanceMessage = "Car park is under maintenance"

// notAvailable replaces missing names and timestamps.
const notAvailable = "N/A"

// Record is one car park as served to API clients.
type Record struct {
	Name               string  `json:"name"`
	CarSpaces          int     `json:"carSpaces"`
	BikeSpaces         int     `json:"bikeSpaces"`
	LastUpdated        string  `json:"lastUpdated"`
	UnderMaintenance   bool    `json:"underMaintenance"`
	MaintenanceMessage *string `json:"maintenanceMessage"`
}

// clone returns r with its own copy of MaintenanceMessage.
func (r Record) clone() Record {
	if r.MaintenanceMessage != nil {
		msg := *r.MaintenanceMessage
		r.MaintenanceMessage = &msg
	}
	return r
}

// Snapshot is the full set of records produced by one successful refresh.
// It must not be mutated after construction; a newer snapshot replaces it.
type Snapshot struct {
	Records   []Record  `json:"records"`
	FetchedAt time.Time `json:"fetchedAt"`
	// CycleID names the refresh cycle that produced the snapshot, if any.
	CycleID string `json:"cycleId,omitempty"`

	// byName maps the case-folded name to the index of its first occurrence.
	byName map[string]int
}

// NewSnapshot indexes records by folded name and wraps them in a Snapshot.
func NewSnapshot(records []Record, fetchedAt time.Time) *Snapshot {
	if records == nil {
		records = []Record{}
	}
	folder := cases.Fold()
	idx := make(map[string]int, len(records))
	for i, r := range records {
		key := folder.String(r.Name)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return &Snapshot{Records: records, FetchedAt: fetchedAt, byName: idx}
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Find returns a copy of the first record whose name matches name, ignoring case.
func (s *Snapshot) Find(name string) (Record, bool) {
	r, ok := s.lookup(cases.Fold().String(name))
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// lookup returns the first record whose folded name equals key.
func (s *Snapshot) lookup(key string) (Record, bool) {
	if s.byName != nil {
		i, ok := s.byName[key]
		if !ok {
			return Record{}, false
		}
		return s.Records[i], true
	}
	// Snapshots built as literals have no index.
	folder := cases.Fold()
	for _, r := range s.Records {
		if folder.String(r.Name) == key {
			return r, true
		}
	}
	return Record{}, false
}
