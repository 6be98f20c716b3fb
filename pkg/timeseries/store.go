package timeseries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind segments the persisted layout by identifier type.
const (
	KindAsset  = "assets"
	KindEntity = "entities"
	KindSystem = "systems"
)

// Key names one append-only log: one (identifier, metric) pair under an
// identifier kind, e.g. assets/ethereum:0xdac1.../supply.
type Key struct {
	Kind   string
	ID     string
	Metric string
}

func AssetKey(id string, metric string) Key {
	return Key{Kind: KindAsset, ID: id, Metric: metric}
}

func EntityKey(id string, metric string) Key {
	return Key{Kind: KindEntity, ID: id, Metric: metric}
}

func SystemKey(id string, metric string) Key {
	return Key{Kind: KindSystem, ID: id, Metric: metric}
}

func (k Key) String() string {
	return k.Kind + "/" + k.ID + "/" + k.Metric
}

// ErrCorrupt marks a log that could not be read back. It is fatal for that
// key's pipeline task only, never for the run.
var ErrCorrupt = errors.New("timeseries: corrupt log")

// Record is one stored entry: the timestamp index plus the record's raw JSON.
type Record struct {
	Timestamp time.Time
	Data      json.RawMessage
}

// Store is an append-only, timestamp-indexed log per key.
//
// Appending a timestamp that already exists in the key's log is a silent
// no-op, which is what makes re-running a pipeline period idempotent. Logs
// are created lazily on first append and never rewritten. Append order does
// not have to equal time order (backfills insert older timestamps), so reads
// order by timestamp.
type Store interface {
	Append(ctx context.Context, key Key, ts time.Time, record any) error
	Latest(ctx context.Context, key Key) (*Record, error)
	Closest(ctx context.Context, key Key, target time.Time, tolerance time.Duration) (*Record, error)
	Has(ctx context.Context, key Key, ts time.Time) (bool, error)
	Close() error
}

// Timestamped is satisfied by every record kind the pipeline stores.
type Timestamped interface {
	Time() time.Time
}

// Append stores a typed record under its own timestamp.
func Append[T Timestamped](ctx context.Context, s Store, key Key, record T) error {
	return s.Append(ctx, key, record.Time(), record)
}

// Latest returns the chronologically last record decoded as T, or nil when
// the log is empty or absent.
func Latest[T any](ctx context.Context, s Store, key Key) (*T, error) {
	rec, err := s.Latest(ctx, key)
	if err != nil || rec == nil {
		return nil, err
	}
	return decode[T](key, rec)
}

// Closest returns the record nearest to target within tolerance, decoded as
// T, or nil when no record qualifies. It joins independently-updated series
// without requiring them to tick in lockstep.
func Closest[T any](ctx context.Context, s Store, key Key, target time.Time, tolerance time.Duration) (*T, error) {
	rec, err := s.Closest(ctx, key, target, tolerance)
	if err != nil || rec == nil {
		return nil, err
	}
	return decode[T](key, rec)
}

func decode[T any](key Key, rec *Record) (*T, error) {
	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return nil, fmt.Errorf("%w: %s at %s: %v", ErrCorrupt, key, rec.Timestamp.Format(time.RFC3339), err)
	}
	return &v, nil
}
