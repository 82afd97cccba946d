package backfill

import (
	"testing"
	"time"

	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

func snap(line int, agent string, last time.Time) Snapshot {
	return Snapshot{Line: line, Data: trust.AgentPlatformData{AgentID: agent, LastActivityAt: last}}
}

func TestLatestPerAgent(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	in := []Snapshot{
		snap(1, "a", base),
		snap(2, "b", base.Add(time.Hour)),
		snap(3, "a", base.Add(48*time.Hour)),
		snap(4, "b", base), // older than line 2
		snap(5, "c", base),
		snap(6, "c", base), // tie: later line wins
	}

	got := LatestPerAgent(in)
	wantLines := []int{2, 3, 6}
	if len(got) != len(wantLines) {
		t.Fatalf("expected %d snapshots, got %d", len(wantLines), len(got))
	}
	for i, line := range wantLines {
		if got[i].Line != line {
			t.Errorf("position %d: expected line %d, got %d", i, line, got[i].Line)
		}
	}
}

func TestLatestPerAgent_Empty(t *testing.T) {
	if got := LatestPerAgent(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}
