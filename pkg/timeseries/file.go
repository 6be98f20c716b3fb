package timeseries

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/utils"
)

// FileStore keeps one JSON-lines file per key under a hierarchical root:
// <root>/<kind>/<identifier>/<metric>.jsonl. Files are append-only; the set
// of timestamps per key is cached in memory after the first touch so the
// duplicate check does not re-scan the log on every append.
//
// Writers to the same key are serialized by a per-key mutex. Disjoint keys
// never contend, which matches how the pipeline assigns exactly one owner
// task per key per run.
type FileStore struct {
	root   string
	logger *zap.Logger
	logs   *xsync.Map[string, *keyLog]
}

type keyLog struct {
	mu     sync.Mutex
	loaded bool
	seen   map[int64]struct{}
}

// NewFileStore roots a file-backed store. The directory tree is created
// lazily, on first append per key.
func NewFileStore(logger *zap.Logger, root string) *FileStore {
	if root == "" {
		root = utils.Env("DATA_DIR", "data")
	}
	return &FileStore{
		root:   root,
		logger: logger,
		logs:   xsync.NewMap[string, *keyLog](),
	}
}

func (s *FileStore) path(key Key) string {
	return filepath.Join(s.root, sanitizeSegment(key.Kind), sanitizeSegment(key.ID), sanitizeSegment(key.Metric)+".jsonl")
}

// sanitizeSegment keeps identifiers from escaping their directory. Path
// separators are the only characters that matter on the filesystems we
// support; ":" in asset ids is left alone.
func sanitizeSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "/", "_")
	seg = strings.ReplaceAll(seg, string(filepath.Separator), "_")
	if seg == "" || seg == "." || seg == ".." {
		return "_"
	}
	return seg
}

func (s *FileStore) keyLog(key Key) *keyLog {
	kl, _ := s.logs.LoadOrStore(key.String(), &keyLog{})
	return kl
}

// load scans the log file once, populating the timestamp set. An unreadable
// or unparsable file is reported as ErrCorrupt for this key.
func (kl *keyLog) load(path string, key Key) error {
	if kl.loaded {
		return nil
	}
	kl.seen = make(map[int64]struct{})

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			kl.loaded = true
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		ts, err := probeTimestamp(sc.Bytes())
		if err != nil {
			return fmt.Errorf("%w: %s line %d: %v", ErrCorrupt, key, line, err)
		}
		kl.seen[ts.UnixNano()] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	kl.loaded = true
	return nil
}

func probeTimestamp(line []byte) (time.Time, error) {
	var probe struct {
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return time.Time{}, err
	}
	if probe.Timestamp.IsZero() {
		return time.Time{}, fmt.Errorf("record has no timestamp")
	}
	return probe.Timestamp, nil
}

// Append writes one record to the key's log; a timestamp already present in
// the log makes this a silent no-op so re-runs stay idempotent.
func (s *FileStore) Append(ctx context.Context, key Key, ts time.Time, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kl := s.keyLog(key)
	kl.mu.Lock()
	defer kl.mu.Unlock()

	path := s.path(key)
	if err := kl.load(path, key); err != nil {
		return err
	}

	nano := ts.UTC().UnixNano()
	if _, dup := kl.seen[nano]; dup {
		s.logger.Debug("Skipping duplicate timestamp",
			zap.String("key", key.String()),
			zap.Time("timestamp", ts))
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record for %s: %w", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir for %s: %w", key, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log for %s: %w", key, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append to %s: %w", key, err)
	}
	kl.seen[nano] = struct{}{}
	return nil
}

// Has reports whether the key's log already holds a record at ts.
func (s *FileStore) Has(ctx context.Context, key Key, ts time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	kl := s.keyLog(key)
	kl.mu.Lock()
	defer kl.mu.Unlock()
	if err := kl.load(s.path(key), key); err != nil {
		return false, err
	}
	_, ok := kl.seen[ts.UTC().UnixNano()]
	return ok, nil
}

// Latest returns the record with the greatest timestamp, nil when the log is
// empty or absent. Append order is not trusted: backfills may have written
// older timestamps after newer ones.
func (s *FileStore) Latest(ctx context.Context, key Key) (*Record, error) {
	var best *Record
	err := s.scan(ctx, key, func(rec Record) {
		if best == nil || rec.Timestamp.After(best.Timestamp) {
			r := rec
			best = &r
		}
	})
	return best, err
}

// Closest returns the record nearest to target among those within tolerance,
// nil when none qualifies. Ties keep the record seen first in the log.
func (s *FileStore) Closest(ctx context.Context, key Key, target time.Time, tolerance time.Duration) (*Record, error) {
	var best *Record
	var bestDist time.Duration
	err := s.scan(ctx, key, func(rec Record) {
		dist := rec.Timestamp.Sub(target)
		if dist < 0 {
			dist = -dist
		}
		if dist > tolerance {
			return
		}
		if best == nil || dist < bestDist {
			r := rec
			best = &r
			bestDist = dist
		}
	})
	return best, err
}

func (s *FileStore) scan(ctx context.Context, key Key, visit func(Record)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kl := s.keyLog(key)
	kl.mu.Lock()
	defer kl.mu.Unlock()

	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		ts, err := probeTimestamp(sc.Bytes())
		if err != nil {
			return fmt.Errorf("%w: %s line %d: %v", ErrCorrupt, key, line, err)
		}
		data := make(json.RawMessage, len(sc.Bytes()))
		copy(data, sc.Bytes())
		visit(Record{Timestamp: ts, Data: data})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
