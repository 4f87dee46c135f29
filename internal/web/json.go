package web

import (
	"encoding/json"

	"github.com/sweeney/thermostat/internal/processed"
)

// RecordsJSON is the body of /records.json.
type RecordsJSON struct {
	Count   int                `json:"count"`
	Records []processed.Record `json:"records"`
}

func formatRecords(recs []processed.Record) []byte {
	if recs == nil {
		recs = []processed.Record{}
	}
	data, _ := json.Marshal(RecordsJSON{Count: len(recs), Records: recs})
	return data
}
