package store

import (
	"time"

	"github.com/jonwraymond/querysync/key"
	"github.com/jonwraymond/querysync/policy"
)

// Status is the fetch state of an entry.
type Status int

const (
	// StatusIdle means no fetch has completed or started.
	StatusIdle Status = iota
	// StatusLoading means a fetch is in flight.
	StatusLoading
	// StatusSuccess means the last fetch succeeded.
	StatusSuccess
	// StatusError means the last fetch failed after all retries.
	StatusError
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is the cached record for one key. The store hands out copies;
// mutate entries only through Store.Upsert.
type Entry struct {
	Key key.Key

	// Value is the last successfully fetched payload. HasValue tells an
	// absent value apart from a nil payload.
	Value    any
	HasValue bool

	Status Status

	// Err is the last failure, cleared on the next success.
	Err error

	FetchedAt time.Time
	StaleAt   time.Time

	// Invalidated is set by Invalidate and cleared by the next success.
	Invalidated bool

	Subscribers int

	// InflightID is non-zero while a fetch is outstanding and names the
	// only request whose response may be applied.
	InflightID uint64

	// LastRequest is the highest request id ever begun on the entry.
	LastRequest uint64

	// invalidatedFlight is the request that was in flight when the entry
	// was last invalidated. Its response predates the invalidation.
	invalidatedFlight uint64

	// Policy is resolved once, when the entry is created.
	Policy policy.Policy

	CreatedAt   time.Time
	UnusedSince time.Time

	// Version changes whenever Value or Err changes.
	Version uint64

	// Seq orders snapshots of the same entry.
	Seq uint64
}

// IsFresh reports whether the entry may be served without a fetch.
func (e Entry) IsFresh(now time.Time) bool {
	return e.Status == StatusSuccess && now.Before(e.StaleAt)
}

// IsStale reports whether the entry holds no fresh data.
func (e Entry) IsStale(now time.Time) bool {
	return !e.IsFresh(now)
}

// InFlight reports whether a fetch is outstanding.
func (e Entry) InFlight() bool {
	return e.InflightID != 0
}

// Begin marks the entry loading under request id. Ids at or below
// LastRequest are ignored; Begin reports whether id took effect.
func (e *Entry) Begin(id uint64) bool {
	if id <= e.LastRequest {
		return false
	}
	e.LastRequest = id
	e.Status = StatusLoading
	e.InflightID = id
	return true
}

// Resolve stores a successful result fetched at at. A result of a request
// that was in flight when the entry was invalidated is stored stale.
func (e *Entry) Resolve(value any, at time.Time) {
	e.Value = value
	e.HasValue = true
	e.Status = StatusSuccess
	e.Err = nil
	e.FetchedAt = at
	if e.InflightID != 0 && e.InflightID == e.invalidatedFlight {
		e.StaleAt = time.Time{}
		e.Invalidated = true
	} else {
		e.StaleAt = e.Policy.StaleAt(at)
		e.Invalidated = false
	}
	e.InflightID = 0
	e.Version++
}

// Seed stores value as if fetched at at without touching an outstanding
// fetch. An entry with a fetch in flight stays loading.
func (e *Entry) Seed(value any, at time.Time) {
	e.Value = value
	e.HasValue = true
	e.Err = nil
	e.FetchedAt = at
	e.StaleAt = e.Policy.StaleAt(at)
	e.Invalidated = false
	if !e.InFlight() {
		e.Status = StatusSuccess
	}
	e.Version++
}

// Fail records a terminal fetch failure. The previous value is kept.
func (e *Entry) Fail(err error) {
	e.Status = StatusError
	e.Err = err
	e.InflightID = 0
	e.Version++
}

// Invalidate marks the entry stale without touching its value. A fetch in
// flight keeps running, but its result will not count as fresh.
func (e *Entry) Invalidate() {
	e.StaleAt = time.Time{}
	e.Invalidated = true
	e.invalidatedFlight = e.InflightID
}

// visiblyDiffers reports whether a listener should hear about the change
// from e to next.
func (e Entry) visiblyDiffers(next Entry) bool {
	return e.Status != next.Status || e.Version != next.Version
}
