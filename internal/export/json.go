package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/timetrail/internal/model"
)

type jsonExport struct {
	ExportedAt string      `json:"exported_at"`
	Count      int         `json:"count"`
	Entries    []jsonEntry `json:"entries"`
}

type jsonEntry struct {
	UUID           string `json:"uuid"`
	Category       string `json:"category"`
	StartTime      string `json:"start_time"`
	DurationSec    int64  `json:"duration_seconds"`
	Duration       string `json:"duration"`
	PrecedingStart int64  `json:"preceding_start"`
	Comment        string `json:"comment,omitempty"`
}

// ToJSON writes entries to path as a single JSON document: an export
// timestamp, a count, and the entries themselves.
func ToJSON(entries []model.DerivedEntry, path string) error {
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(entries),
	}

	for _, e := range entries {
		export.Entries = append(export.Entries, jsonEntry{
			UUID:           e.UUID.String(),
			Category:       e.Category,
			StartTime:      e.StartTime().Local().Format(time.RFC3339),
			DurationSec:    e.Duration,
			Duration:       formatDuration(e.Duration),
			PrecedingStart: e.PrecedingStart,
			Comment:        e.Comment,
		})
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}
