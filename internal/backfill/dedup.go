package backfill

import "sort"

// LatestPerAgent keeps one snapshot per agent: the one with the latest
// LastActivityAt, the later line winning ties. Output is ordered by line.
func LatestPerAgent(snaps []Snapshot) []Snapshot {
	latest := make(map[string]Snapshot, len(snaps))
	for _, s := range snaps {
		cur, ok := latest[s.Data.AgentID]
		if !ok || !s.Data.LastActivityAt.Before(cur.Data.LastActivityAt) {
			latest[s.Data.AgentID] = s
		}
	}

	out := make([]Snapshot, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}
