package aggregate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"github.com/VForWaTer/tool-vforwater-loader/ingest"
	"hermannm.dev/enumnames"
	"hermannm.dev/wrap"
)

// Outcome is the terminal state of one table at one scale in a run. Skips are not remembered
// between runs.
type Outcome uint8

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeSkipped
)

var outcomeNames = enumnames.NewMap(map[Outcome]string{
	OutcomeSuccess: "success",
	OutcomeSkipped: "skipped",
})

func (outcome Outcome) String() string {
	return outcomeNames.GetNameOrFallback(outcome, "INVALID_OUTCOME")
}

func (outcome Outcome) MarshalJSON() ([]byte, error) {
	return outcomeNames.MarshalToNameJSON(outcome)
}

func (outcome *Outcome) UnmarshalJSON(bytes []byte) error {
	return outcomeNames.UnmarshalFromNameJSON(bytes, outcome)
}

type Entry struct {
	Table   string   `json:"table"`
	Scale   db.Scale `json:"scale"`
	Outcome Outcome  `json:"outcome"`
	Reason  string   `json:"reason,omitempty"`
	Rows    int      `json:"rows"`
	// Whether the table's means made it into the combined result of the scale.
	InFanIn  bool          `json:"inFanIn"`
	Duration time.Duration `json:"durationNs"`
}

type ScaleReport struct {
	Scale   db.Scale `json:"scale"`
	Entries []Entry  `json:"entries"`
	// Tables joined into the combined means file, in join order.
	FanInTables []string `json:"fanInTables"`
}

func (report ScaleReport) Count(outcome Outcome) int {
	count := 0
	for _, entry := range report.Entries {
		if entry.Outcome == outcome {
			count++
		}
	}
	return count
}

// ProcessingLog is the record of one batch run, written next to its result files.
type ProcessingLog struct {
	RunID       string         `json:"runId"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
	Ingestion   ingest.Summary `json:"ingestion"`
	Aggregation []ScaleReport  `json:"aggregation"`
	ResultFiles []string       `json:"resultFiles"`
	Errors      []string       `json:"errors,omitempty"`
}

const ProcessingLogFile = "processing_log.json"

func (processingLog ProcessingLog) WriteFile(directory string) error {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return wrap.Errorf(err, "failed to create '%s'", directory)
	}

	encoded, err := json.MarshalIndent(processingLog, "", "  ")
	if err != nil {
		return wrap.Error(err, "failed to encode processing log")
	}

	path := filepath.Join(directory, ProcessingLogFile)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return wrap.Errorf(err, "failed to write processing log to '%s'", path)
	}
	return nil
}
