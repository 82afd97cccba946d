package backfill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseSnapshotFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "export.jsonl", `{"agent_id":"a1","den_messages":10,"verification_tier":"verified"}

{"agent_id":"a2","review_count":3,"verification_tier":1}
{broken
{"den_messages":4}
{"agent_id":"a3","verification_tier":"diamond"}
`)

	snaps, lineErrs, err := ParseSnapshotFile(path)
	if err != nil {
		t.Fatalf("ParseSnapshotFile: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Line != 1 || snaps[0].Data.AgentID != "a1" || snaps[0].Data.VerificationTier != trust.TierVerified {
		t.Errorf("unexpected first snapshot: %+v", snaps[0])
	}
	if snaps[1].Line != 3 || snaps[1].Data.ReviewCount != 3 || snaps[1].Data.VerificationTier != trust.TierBasic {
		t.Errorf("unexpected second snapshot: %+v", snaps[1])
	}
	if len(lineErrs) != 3 {
		t.Errorf("expected 3 line errors (broken, missing id, bad tier), got %d: %v", len(lineErrs), lineErrs)
	}
}

func TestParseSnapshotFile_Missing(t *testing.T) {
	if _, _, err := ParseSnapshotFile(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
}
