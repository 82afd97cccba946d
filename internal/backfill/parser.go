package backfill

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

// ParseSnapshotFile reads a JSONL export with one AgentPlatformData object per
// line. Blank lines are ignored. Malformed lines are returned as lineErrs and
// do not stop the scan.
func ParseSnapshotFile(path string) (snaps []Snapshot, lineErrs []error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var d trust.AgentPlatformData
		if err := json.Unmarshal(raw, &d); err != nil {
			lineErrs = append(lineErrs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if d.AgentID == "" {
			lineErrs = append(lineErrs, fmt.Errorf("line %d: missing agent_id", line))
			continue
		}
		snaps = append(snaps, Snapshot{Line: line, Data: d})
	}
	if err := scanner.Err(); err != nil {
		return snaps, lineErrs, fmt.Errorf("scan: %w", err)
	}
	return snaps, lineErrs, nil
}
