// Package persist provides durable, atomic storage of one record per live
// signal. Records survive process crash; a half-written record is never
// visible to readers.
package persist

import (
	"context"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrCorrupt  = errors.New("record corrupt")
)

// RecordVersion is the current on-disk envelope version.
const RecordVersion = 1

// Record is the durable envelope around a signal. Priority is a monotonic
// ordering key assigned by the store on write.
type Record struct {
	Version   int           `json:"version"`
	Key       string        `json:"key"`
	Status    schema.Status `json:"status"`
	Signal    schema.Signal `json:"signal"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Priority  uint64        `json:"priority"`
}

// NewRecord wraps a signal into its persistence envelope.
func NewRecord(sig *schema.Signal) Record {
	return Record{
		Version: RecordVersion,
		Key:     sig.Key(),
		Status:  sig.Status,
		Signal:  *sig.Clone(),
	}
}

// Validate checks the envelope and the embedded signal invariants. Records
// failing validation are treated as corrupt and quarantined by readers.
func (r *Record) Validate() error {
	if r.Version <= 0 || r.Version > RecordVersion {
		return errors.Wrapf(ErrCorrupt, "unsupported record version %d", r.Version)
	}
	if r.Key == "" || r.Key != r.Signal.Key() {
		return errors.Wrapf(ErrCorrupt, "record key %q does not match signal", r.Key)
	}
	if r.Status != r.Signal.Status {
		return errors.Wrapf(ErrCorrupt, "record status %q does not match signal status %q", r.Status, r.Signal.Status)
	}
	if r.Signal.Terminal() {
		return errors.Wrapf(ErrCorrupt, "terminal signal persisted with status %q", r.Status)
	}
	if err := r.Signal.Validate(); err != nil {
		return errors.Wrap(ErrCorrupt, err.Error())
	}
	return nil
}

// Store is the pluggable persistence backend. Keys are namespaced by
// (strategyName, symbol) so concurrent strategies never contend on the same
// record. Implementations must make Write atomic: a crash mid-write leaves
// the previous record intact.
type Store interface {
	Read(ctx context.Context, key string) (Record, error)
	Write(ctx context.Context, key string, record Record) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context) ([]string, error)
}
