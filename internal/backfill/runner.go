package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/vouch/internal/store"
	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

// Issuer scores and publishes attestations.
type Issuer interface {
	Compute(d trust.AgentPlatformData) (trust.TrustAttestation, error)
	Issue(ctx context.Context, d trust.AgentPlatformData) (store.AttestationRecord, error)
}

// Config holds the backfill command configuration.
type Config struct {
	Dir        string
	SingleFile string // process a single file only
	Since      time.Time
	Until      time.Time
	DryRun     bool // score without storing
	LatestOnly bool // one attestation per agent per file
	StatePath  string
}

// Runner replays exported metrics snapshots through the attestation service.
type Runner struct {
	cfg    Config
	issuer Issuer
	logger *slog.Logger
}

func NewRunner(cfg Config, issuer Issuer, logger *slog.Logger) *Runner {
	if cfg.StatePath == "" {
		cfg.StatePath = DefaultStatePath
	}
	return &Runner{cfg: cfg, issuer: issuer, logger: logger}
}

// Run processes every unprocessed .jsonl file in order. State is saved after
// each file so an interrupted run resumes where it stopped. Dry runs never
// touch the state file.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var sum Summary

	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return sum, fmt.Errorf("load state: %w", err)
	}

	files, err := r.discoverFiles()
	if err != nil {
		return sum, fmt.Errorf("discover files: %w", err)
	}

	var pending []string
	for _, f := range files {
		if !state.IsProcessed(f) {
			pending = append(pending, f)
		}
	}
	state.FilesRemaining = len(pending)
	r.logger.Info("files discovered", "total", len(files), "pending", len(pending), "dry_run", r.cfg.DryRun)

	for _, path := range pending {
		select {
		case <-ctx.Done():
			r.logger.Info("backfill interrupted, saving state")
			r.save(state)
			sum.Duration = time.Since(start)
			return sum, ctx.Err()
		default:
		}

		fs, err := r.processFile(ctx, path, state)
		sum.Files = append(sum.Files, fs)
		sum.Issued += fs.Issued
		sum.Skipped += fs.Skipped
		sum.Failures += fs.Failures
		if err != nil {
			// The file stays pending and is replayed from the top on resume.
			r.logger.Info("backfill interrupted mid-file, saving state", "path", path, "issued", fs.Issued)
			r.save(state)
			sum.Duration = time.Since(start)
			return sum, err
		}

		state.MarkProcessed(path)
		state.FilesRemaining--
		r.save(state)
	}

	sum.Duration = time.Since(start)
	r.logger.Info("backfill complete",
		"files", len(sum.Files),
		"issued", sum.Issued,
		"skipped", sum.Skipped,
		"failures", sum.Failures,
		"duration", sum.Duration.Round(time.Millisecond),
	)
	return sum, nil
}

// processFile replays one file. It returns the context error, without
// finishing the file, when ctx is cancelled between snapshots.
func (r *Runner) processFile(ctx context.Context, path string, state *BackfillState) (FileSummary, error) {
	fs := FileSummary{Path: path}

	snaps, lineErrs, err := ParseSnapshotFile(path)
	for _, le := range lineErrs {
		r.logger.Warn("skipping malformed snapshot", "path", path, "error", le)
		state.AddError(fmt.Sprintf("%s: %v", path, le))
	}
	fs.Failures += len(lineErrs)
	fs.Lines = len(snaps) + len(lineErrs)
	if err != nil {
		r.logger.Warn("failed to read snapshot file", "path", path, "error", err)
		state.AddError(fmt.Sprintf("read %s: %v", path, err))
		fs.Failures++
	}

	var inRange []Snapshot
	for _, s := range snaps {
		if r.inDateRange(s.Data.LastActivityAt) {
			inRange = append(inRange, s)
		} else {
			fs.Skipped++
		}
	}
	if r.cfg.LatestOnly {
		deduped := LatestPerAgent(inRange)
		fs.Skipped += len(inRange) - len(deduped)
		inRange = deduped
	}

	for _, s := range inRange {
		if err := ctx.Err(); err != nil {
			return fs, err
		}
		state.SnapshotsProcessed++
		if r.cfg.DryRun {
			att, err := r.issuer.Compute(s.Data)
			if err != nil {
				r.logger.Warn("snapshot rejected", "path", path, "line", s.Line, "error", err)
				fs.Failures++
				continue
			}
			r.logger.Info("dry run", "agent_id", att.AgentID, "trust_score", att.TrustScore)
			fs.Issued++
			continue
		}

		rec, err := r.issuer.Issue(ctx, s.Data)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				state.SnapshotsProcessed--
				return fs, ctxErr
			}
			r.logger.Warn("failed to issue attestation", "path", path, "line", s.Line, "agent_id", s.Data.AgentID, "error", err)
			state.AddError(fmt.Sprintf("%s:%d: %v", path, s.Line, err))
			fs.Failures++
			continue
		}
		state.AttestationsIssued++
		fs.Issued++
		r.logger.Debug("attestation issued", "agent_id", rec.Attestation.AgentID, "version", rec.Attestation.Version)
	}

	r.logger.Info("file processed", "path", path, "lines", fs.Lines, "issued", fs.Issued, "skipped", fs.Skipped, "failures", fs.Failures)
	return fs, nil
}

func (r *Runner) save(state *BackfillState) {
	if r.cfg.DryRun {
		return
	}
	if err := state.Save(); err != nil {
		r.logger.Warn("failed to save backfill state", "error", err)
	}
}

func (r *Runner) discoverFiles() ([]string, error) {
	if r.cfg.SingleFile != "" {
		if _, err := os.Stat(r.cfg.SingleFile); err != nil {
			return nil, err
		}
		return []string{r.cfg.SingleFile}, nil
	}
	if r.cfg.Dir == "" {
		return nil, fmt.Errorf("no input directory or file given")
	}

	var files []string
	err := filepath.WalkDir(r.cfg.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// inDateRange reports whether t falls in [Since, Until]. Zero bounds are open.
func (r *Runner) inDateRange(t time.Time) bool {
	if !r.cfg.Since.IsZero() && t.Before(r.cfg.Since) {
		return false
	}
	if !r.cfg.Until.IsZero() && t.After(r.cfg.Until) {
		return false
	}
	return true
}
