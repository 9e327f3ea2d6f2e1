// Package usage turns journaled call records into periodic usage reports and
// ships them to object storage. Each report covers the span between the
// adapter's archive checkpoint and its newest journaled call; the checkpoint
// only advances after a successful upload, so a failed run is retried in full
// on the next pass.
package usage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/toolbridge/toolbridge/pkg/journal"
)

// Journal is the read side of the call journal the archiver consumes.
type Journal interface {
	Adapters(ctx context.Context) ([]string, error)
	Checkpoint(ctx context.Context, adapter string) (time.Time, error)
	UsageSince(ctx context.Context, adapter string, since time.Time) ([]journal.Usage, time.Time, error)
	AdvanceCheckpoint(ctx context.Context, adapter string, ts time.Time) error
}

// Uploader ships a finished report to object storage.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// Report is the archived artifact for one adapter and reporting window.
type Report struct {
	Adapter    string          `json:"adapter"`
	CreatedAt  time.Time       `json:"created_at"`
	Since      time.Time       `json:"since"`
	Until      time.Time       `json:"until"`
	TotalCalls int64           `json:"total_calls"`
	Lines      []journal.Usage `json:"lines"`
	Checksum   string          `json:"checksum"`
}

// Service builds and uploads usage reports.
type Service struct {
	journal  Journal
	uploader Uploader
	log      *slog.Logger
}

func New(j Journal, up Uploader, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{journal: j, uploader: up, log: log}
}

// ArchiveAll archives every adapter present in the journal. One adapter's
// failure does not stop the others; the first error is returned after the
// full pass.
func (s *Service) ArchiveAll(ctx context.Context, now time.Time) error {
	adapters, err := s.journal.Adapters(ctx)
	if err != nil {
		return fmt.Errorf("usage.ArchiveAll: %w", err)
	}

	var firstErr error
	for _, adapter := range adapters {
		key, err := s.ArchiveAdapter(ctx, adapter, now)
		if err != nil {
			s.log.Error("failed to archive usage", "adapter", adapter, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if key == "" {
			s.log.Info("no new usage to archive", "adapter", adapter)
			continue
		}
		s.log.Info("archived usage report", "adapter", adapter, "key", key)
	}
	return firstErr
}

// ArchiveAdapter archives one adapter's usage since its checkpoint. It
// returns the object key, or "" when there was nothing new to archive.
func (s *Service) ArchiveAdapter(ctx context.Context, adapter string, now time.Time) (string, error) {
	since, err := s.journal.Checkpoint(ctx, adapter)
	if err != nil {
		return "", fmt.Errorf("usage.ArchiveAdapter checkpoint: %w", err)
	}

	lines, until, err := s.journal.UsageSince(ctx, adapter, since)
	if err != nil {
		return "", fmt.Errorf("usage.ArchiveAdapter collect: %w", err)
	}
	if len(lines) == 0 {
		return "", nil
	}

	report := Report{
		Adapter:   adapter,
		CreatedAt: now.UTC(),
		Since:     since.UTC(),
		Until:     until.UTC(),
		Lines:     lines,
		Checksum:  checksum(adapter, since, until, lines),
	}
	for _, l := range lines {
		report.TotalCalls += l.Calls
	}

	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("usage.ArchiveAdapter marshal: %w", err)
	}

	day := until.UTC()
	key := fmt.Sprintf("usage/%s/%04d/%02d/%02d/%s.json",
		adapter, day.Year(), day.Month(), day.Day(), report.Checksum[:16])

	if err := s.uploader.Upload(ctx, key, body); err != nil {
		// Checkpoint stays put so the next run re-collects this window.
		return "", fmt.Errorf("usage.ArchiveAdapter upload: %w", err)
	}

	if err := s.journal.AdvanceCheckpoint(ctx, adapter, until); err != nil {
		return "", fmt.Errorf("usage.ArchiveAdapter advance: %w", err)
	}
	return key, nil
}

// checksum fingerprints the report content. CreatedAt is excluded so the same
// window always hashes the same regardless of when the archiver ran.
func checksum(adapter string, since, until time.Time, lines []journal.Usage) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d\n", adapter, since.UTC().UnixNano(), until.UTC().UnixNano())
	for _, l := range lines {
		fmt.Fprintf(h, "%s|%s|%s|%d|%d\n", l.Tool, l.Action, l.Outcome, l.Calls, l.TotalMS)
	}
	return hex.EncodeToString(h.Sum(nil))
}
