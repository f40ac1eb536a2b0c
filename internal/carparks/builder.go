package carparks

import (
	"strconv"
	"strings"
	"time"
)

// Upstream field names.
const (
	fieldName        = "name"
	fieldNameEN      = "name_en"
	fieldCarCount    = "Car_CNT"
	fieldBikeCount   = "MB_CNT"
	fieldTime        = "Time"
	fieldMaintenance = "maintenance"
)

// maintenanceActive is the only flag value meaning "under maintenance".
const maintenanceActive = "1"

// BuildSnapshot maps raw records onto Records and wraps them in a Snapshot.
// Malformed fields are defaulted; no record can fail the batch.
func BuildSnapshot(raws []RawRecord, fetchedAt time.Time) *Snapshot {
	records := make([]Record, 0, len(raws))
	for _, raw := range raws {
		records = append(records, BuildRecord(raw))
	}
	return NewSnapshot(records, fetchedAt)
}

// BuildRecord maps a single raw record.
func BuildRecord(raw RawRecord) Record {
	r := Record{
		Name:        firstNonBlank(raw, fieldNameEN, fieldName),
		CarSpaces:   count(raw[fieldCarCount]),
		BikeSpaces:  count(raw[fieldBikeCount]),
		LastUpdated: firstNonBlank(raw, fieldTime),
	}
	if raw[fieldMaintenance] == maintenanceActive {
		msg := MaintenanceMessage
		r.UnderMaintenance = true
		r.MaintenanceMessage = &msg
	}
	return r
}

func firstNonBlank(raw RawRecord, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(raw[k]); v != "" {
			return v
		}
	}
	return notAvailable
}

// count parses a space count; anything that is not a non-negative integer is 0.
func count(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
