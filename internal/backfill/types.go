package backfill

import (
	"time"

	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

// Snapshot is one metrics line from an export file.
type Snapshot struct {
	Line int
	Data trust.AgentPlatformData
}

// FileSummary is the per-file outcome of a run.
type FileSummary struct {
	Path     string
	Lines    int
	Issued   int
	Skipped  int
	Failures int
}

// Summary totals a run.
type Summary struct {
	Files    []FileSummary
	Issued   int
	Skipped  int
	Failures int
	Duration time.Duration
}
