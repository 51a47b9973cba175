package repo

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/miradorstack/model-graveyard/internal/cache"
	"github.com/miradorstack/model-graveyard/internal/models"
	"github.com/miradorstack/model-graveyard/internal/utils"
)

const (
	// StatusFile holds the current snapshot, overwritten on every run.
	StatusFile = "graveyard_status.json"
	// HistoryFile accumulates one compact snapshot per line.
	HistoryFile = "graveyard_history.jsonl"
	// CacheKey is the cache entry mirroring StatusFile.
	CacheKey = "graveyard:status"
)

var (
	// ErrSnapshotNotFound is returned before the first run has written a snapshot.
	ErrSnapshotNotFound = errors.New("no snapshot available")
	// ErrRecordNotFound is returned by PatchRecord for unknown ids.
	ErrRecordNotFound = errors.New("status record not found")
)

// SnapshotStore persists status snapshots under a data directory.
type SnapshotStore struct {
	dir      string
	cache    cache.Provider
	cacheTTL time.Duration
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewSnapshotStore constructs a store rooted at dir. A nil cache disables mirroring.
func NewSnapshotStore(dir string, cacheProvider cache.Provider, cacheTTL time.Duration, logger *slog.Logger) *SnapshotStore {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL < 0 {
		cacheTTL = 0
	}
	return &SnapshotStore{dir: dir, cache: cacheProvider, cacheTTL: cacheTTL, logger: logger}
}

// StatusPath is the path of the current snapshot file.
func (s *SnapshotStore) StatusPath() string { return filepath.Join(s.dir, StatusFile) }

// HistoryPath is the path of the history log.
func (s *SnapshotStore) HistoryPath() string { return filepath.Join(s.dir, HistoryFile) }

// Exists reports whether a snapshot has been written.
func (s *SnapshotStore) Exists() bool {
	_, err := os.Stat(s.StatusPath())
	return err == nil
}

// Write stamps items with now, overwrites the current snapshot and appends it
// to the history log.
func (s *SnapshotStore) Write(ctx context.Context, items []models.StatusRecord, now time.Time) (models.StatusSnapshot, error) {
	if items == nil {
		items = []models.StatusRecord{}
	}
	snapshot := models.StatusSnapshot{
		GeneratedAt:   utils.FormatTimestamp(now),
		SchemaVersion: models.SchemaVersion,
		Items:         items,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeCurrent(ctx, snapshot); err != nil {
		return models.StatusSnapshot{}, err
	}
	if err := s.appendHistory(snapshot); err != nil {
		return models.StatusSnapshot{}, err
	}
	return snapshot, nil
}

// Read returns the current snapshot, preferring the cache mirror.
func (s *SnapshotStore) Read(ctx context.Context) (models.StatusSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

// PatchRecord replaces the item with the given id and refreshes generated_at.
// The history log is left untouched.
func (s *SnapshotStore) PatchRecord(ctx context.Context, id string, record models.StatusRecord, now time.Time) (models.StatusSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.read(ctx)
	if err != nil {
		return models.StatusSnapshot{}, err
	}
	found := false
	for i := range snapshot.Items {
		if snapshot.Items[i].ID == id {
			snapshot.Items[i] = record
			found = true
			break
		}
	}
	if !found {
		return models.StatusSnapshot{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	snapshot.GeneratedAt = utils.FormatTimestamp(now)
	if err := s.writeCurrent(ctx, snapshot); err != nil {
		return models.StatusSnapshot{}, err
	}
	return snapshot, nil
}

// History returns up to limit snapshots from the history log, oldest first.
// limit <= 0 returns every line. Malformed lines are skipped.
func (s *SnapshotStore) History(ctx context.Context, limit int) ([]models.StatusSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.HistoryPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.StatusSnapshot{}, nil
		}
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
		if limit > 0 && len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}

	out := make([]models.StatusSnapshot, 0, len(lines))
	for _, line := range lines {
		var snapshot models.StatusSnapshot
		if err := json.Unmarshal(line, &snapshot); err != nil {
			s.logger.Warn("skipping malformed history line", slog.Any("error", err))
			continue
		}
		out = append(out, snapshot)
	}
	return out, nil
}

func (s *SnapshotStore) read(ctx context.Context) (models.StatusSnapshot, error) {
	if cached, err := s.cache.Get(ctx, CacheKey); err == nil {
		var snapshot models.StatusSnapshot
		if err := json.Unmarshal(cached, &snapshot); err == nil {
			return snapshot, nil
		}
		s.logger.Warn("discarding undecodable cached snapshot")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("snapshot cache read failed", slog.Any("error", err))
	}

	data, err := os.ReadFile(s.StatusPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.StatusSnapshot{}, ErrSnapshotNotFound
		}
		return models.StatusSnapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot models.StatusSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return models.StatusSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	s.mirror(ctx, snapshot)
	return snapshot, nil
}

func (s *SnapshotStore) writeCurrent(ctx context.Context, snapshot models.StatusSnapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.StatusPath() + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.StatusPath()); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	s.mirror(ctx, snapshot)
	return nil
}

func (s *SnapshotStore) appendHistory(snapshot models.StatusSnapshot) error {
	line, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.HistoryPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append history: %w", err)
	}
	return f.Close()
}

func (s *SnapshotStore) mirror(ctx context.Context, snapshot models.StatusSnapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, CacheKey, payload, s.cacheTTL); err != nil {
		s.logger.Warn("snapshot cache write failed", slog.Any("error", err))
	}
}
