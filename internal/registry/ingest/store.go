package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tradeboard/tradeboard/internal/registry"
)

// ErrNoSource is returned when neither an upload nor a data file path is available.
var ErrNoSource = errors.New("ingest: no data source configured")

// Fingerprint identifies one version of a file on disk.
type Fingerprint struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// Changed reports whether other describes a different file version.
func (f Fingerprint) Changed(other Fingerprint) bool {
	return f.Path != other.Path || f.Size != other.Size || !f.ModTime.Equal(other.ModTime)
}

// Stat fingerprints the file at path.
func Stat(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("ingest: stat %s: %w", path, err)
	}
	return Fingerprint{Path: path, ModTime: info.ModTime().UTC(), Size: info.Size()}, nil
}

// Snapshot is an immutable loaded table. Version counts loads within this
// process only; ContentKey names the loaded content and is stable across
// processes reading the same file or upload.
type Snapshot struct {
	Table       registry.Table
	Source      Source
	Fingerprint Fingerprint
	ContentKey  string
	LoadedAt    time.Time
	Version     int64
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Path     string
	Required []string
	Timeout  time.Duration
}

// Store holds the process-wide registry snapshot. Loads replace the whole
// snapshot; readers never observe a partially loaded table.
type Store struct {
	cfg     StoreConfig
	logger  *slog.Logger
	current atomic.Pointer[Snapshot]
	version atomic.Int64
	group   singleflight.Group
	now     func() time.Time

	mu       sync.RWMutex
	hooks    []func(context.Context, *Snapshot)
	failures []func(context.Context, Source, error)
}

// NewStore builds an empty store.
func NewStore(cfg StoreConfig, logger *slog.Logger) *Store {
	if len(cfg.Required) == 0 {
		cfg.Required = registry.DefaultRequiredColumns()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cfg: cfg, logger: logger, now: time.Now}
}

// OnReload registers fn to run after every successful load.
func (s *Store) OnReload(fn func(context.Context, *Snapshot)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// OnFailure registers fn to run when a load fails. The previous snapshot
// stays active.
func (s *Store) OnFailure(fn func(context.Context, Source, error)) {
	s.mu.Lock()
	s.failures = append(s.failures, fn)
	s.mu.Unlock()
}

// Current returns the active snapshot, or nil before the first load.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Path is the configured data file path.
func (s *Store) Path() string { return s.cfg.Path }

// LoadFile loads the configured data file. Concurrent calls share one read.
func (s *Store) LoadFile(ctx context.Context) (*Snapshot, error) {
	if s.cfg.Path == "" {
		return nil, ErrNoSource
	}
	return s.shared(ctx, "file:"+s.cfg.Path, FileSource(s.cfg.Path))
}

// LoadUpload replaces the snapshot with an uploaded table. An active upload
// takes precedence over the data file until the process restarts.
func (s *Store) LoadUpload(ctx context.Context, name string, data []byte) (*Snapshot, error) {
	return s.load(ctx, UploadSource(name, data))
}

// ReloadIfChanged reloads the data file when its fingerprint moved. It is a
// no-op while an upload is active or when no path is configured.
func (s *Store) ReloadIfChanged(ctx context.Context) (bool, error) {
	if s.cfg.Path == "" {
		return false, nil
	}
	cur := s.Current()
	if cur != nil && cur.Source.Kind == KindUpload {
		return false, nil
	}
	fp, err := Stat(s.cfg.Path)
	if err != nil {
		return false, err
	}
	if cur != nil && !cur.Fingerprint.Changed(fp) {
		return false, nil
	}
	if _, err := s.LoadFile(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) shared(ctx context.Context, key string, src Source) (*Snapshot, error) {
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		return s.load(context.WithoutCancel(ctx), src)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (s *Store) load(ctx context.Context, src Source) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	snap, err := s.read(ctx, src)
	if err != nil {
		s.logger.Warn("registry snapshot load failed",
			slog.String("source", src.String()),
			slog.Any("error", err))
		s.mu.RLock()
		failures := slices.Clone(s.failures)
		s.mu.RUnlock()
		for _, fn := range failures {
			fn(ctx, src, err)
		}
		return nil, err
	}

	s.mu.RLock()
	hooks := slices.Clone(s.hooks)
	s.mu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, snap)
	}
	return snap, nil
}

func (s *Store) read(ctx context.Context, src Source) (*Snapshot, error) {
	var fp Fingerprint
	if src.Kind == KindFile {
		var err error
		if fp, err = Stat(src.Path); err != nil {
			return nil, err
		}
	}

	raw, err := LoadTable(ctx, src)
	if err != nil {
		return nil, err
	}
	table, err := registry.Normalize(raw, s.cfg.Required)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Table:       table,
		Source:      Source{Kind: src.Kind, Name: src.Name, Path: src.Path},
		Fingerprint: fp,
		ContentKey:  s.contentKey(src, fp),
		LoadedAt:    s.now().UTC(),
		Version:     s.version.Add(1),
	}
	s.current.Store(snap)
	s.logger.Info("registry snapshot loaded",
		slog.String("source", src.String()),
		slog.Int("rows", table.Len()),
		slog.Int64("version", snap.Version),
		slog.String("content", snap.ContentKey))
	return snap, nil
}

// contentKey hashes the identity of the loaded content: the file fingerprint
// for files, the bytes for uploads. The required columns are folded in since
// they change which rows survive normalisation.
func (s *Store) contentKey(src Source, fp Fingerprint) string {
	h := sha256.New()
	h.Write([]byte(src.Kind))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(s.cfg.Required, "\x1f")))
	h.Write([]byte{0})
	switch src.Kind {
	case KindFile:
		h.Write([]byte(fp.Path))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(fp.ModTime.UnixNano(), 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(fp.Size, 10)))
	default:
		h.Write(src.Data)
	}
	return string(src.Kind) + "-" + hex.EncodeToString(h.Sum(nil))[:32]
}
