// Package cache memoizes finished timetables by input fingerprint.
//
// At most one computation runs per key at a time: concurrent misses share
// the in-flight result. Finished entries live in a bounded LRU with an
// optional TTL, so a key that was evicted is computed again on its next
// request. Failed computations are never stored.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"timetabler/pkg/models"
)

const (
	DefaultMaxEntries = 1024
	DefaultTTL        = 24 * time.Hour
)

// Compute produces the document for a cache miss.
type Compute func(ctx context.Context) (models.Document, error)

// Commit receives a computed timetable, with its identifier, before it is
// stored. An error keeps the entry out of the cache.
type Commit func(ctx context.Context, tt models.Timetable) error

type Options struct {
	// MaxEntries bounds the cache; <= 0 means unbounded.
	MaxEntries int
	// TTL expires entries; <= 0 means entries never expire.
	TTL time.Duration
	// FirstSeq is the number given to the first computed entry.
	FirstSeq int64
}

type Memo struct {
	entries *expirable.LRU[string, models.Timetable]
	group   singleflight.Group
	seq     atomic.Int64
}

func New(opts Options) *Memo {
	m := &Memo{
		entries: expirable.NewLRU[string, models.Timetable](opts.MaxEntries, nil, opts.TTL),
	}
	m.seq.Store(opts.FirstSeq)
	return m
}

type result struct {
	tt  models.Timetable
	hit bool
}

// GetOrCompute is GetOrCommit without a commit step.
func (m *Memo) GetOrCompute(ctx context.Context, key, prefix string, compute Compute) (models.Timetable, bool, error) {
	return m.GetOrCommit(ctx, key, prefix, compute, nil)
}

// GetOrCommit returns the timetable stored under key, computing and
// storing it on a miss. New entries get the identifier "<prefix>_<n>",
// n counting successful computations across all prefixes from
// Options.FirstSeq. A computation whose commit fails still uses up its
// number.
//
// compute and commit run once per flight on a context detached from
// ctx's cancellation, so a caller that gives up does not abort the work
// other waiters share, and an entry is in the cache only once commit
// returned nil. compute is expected to bound itself. hit reports whether
// the value was already stored.
func (m *Memo) GetOrCommit(ctx context.Context, key, prefix string, compute Compute, commit Commit) (models.Timetable, bool, error) {
	if tt, ok := m.entries.Get(key); ok {
		return clone(tt), true, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		// a flight that finished between Get and DoChan already stored it
		if tt, ok := m.entries.Get(key); ok {
			return result{tt: tt, hit: true}, nil
		}
		doc, err := compute(detached)
		if err != nil {
			return nil, err
		}
		tt := models.Timetable{
			ID:   fmt.Sprintf("%s_%d", prefix, m.seq.Add(1)-1),
			Data: doc.Clone(),
		}
		if commit != nil {
			if err := commit(detached, clone(tt)); err != nil {
				return nil, err
			}
		}
		m.entries.Add(key, tt)
		return result{tt: tt}, nil
	})

	select {
	case <-ctx.Done():
		return models.Timetable{}, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return models.Timetable{}, false, r.Err
		}
		res := r.Val.(result)
		return clone(res.tt), res.hit, nil
	}
}

// Peek returns the stored timetable for key without computing.
func (m *Memo) Peek(key string) (models.Timetable, bool) {
	tt, ok := m.entries.Peek(key)
	if !ok {
		return models.Timetable{}, false
	}
	return clone(tt), true
}

// Len is the number of stored entries.
func (m *Memo) Len() int { return m.entries.Len() }

// Purge drops every stored entry. Identifiers keep counting.
func (m *Memo) Purge() { m.entries.Purge() }

func clone(tt models.Timetable) models.Timetable {
	return models.Timetable{ID: tt.ID, Data: tt.Data.Clone()}
}

// Fingerprint derives the cache key for an input. Only the first prefixLen
// bytes of content take part (all of it when prefixLen <= 0), so inputs
// sharing a prefix and grade share a key.
func Fingerprint(level, grade string, content []byte, prefixLen int) string {
	if prefixLen > 0 && len(content) > prefixLen {
		content = content[:prefixLen]
	}
	h := sha256.New()
	h.Write([]byte(level))
	h.Write([]byte{0})
	h.Write([]byte(grade))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
