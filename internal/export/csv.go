package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/timetrail/internal/model"
)

// ToCSV writes entries to path, one row per live entry, oldest first as
// the caller ordered them.
func ToCSV(entries []model.DerivedEntry, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"UUID", "Category", "Start", "Duration (s)", "Duration", "Preceding Start", "Comment"}); err != nil {
		return err
	}

	for _, e := range entries {
		row := []string{
			e.UUID.String(),
			e.Category,
			e.StartTime().Local().Format(time.RFC3339),
			fmt.Sprintf("%d", e.Duration),
			formatDuration(e.Duration),
			fmt.Sprintf("%d", e.PrecedingStart),
			e.Comment,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

// formatDuration renders secs as HH:MM:SS. A negative secs (the
// no-successor sentinel) renders as a dash: there's nothing to measure yet.
func formatDuration(secs int64) string {
	if secs < 0 {
		return "--:--:--"
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
