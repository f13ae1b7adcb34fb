package taxonomy

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
)

// Options configure where a Store reads its taxonomy from.
type Options struct {
	// Path is an optional YAML file. Empty means the embedded data.
	Path string
	// Variant is VariantKanji (default) or VariantHiragana.
	Variant string
	// Strict disables the fallback to embedded data when Path cannot be
	// read or parsed.
	Strict bool
}

// Store holds the current taxonomy. Readers never lock; Load and Reload
// build a complete new Taxonomy and swap it in atomically.
type Store struct {
	opts Options
	log  *zap.Logger
	cur  atomic.Pointer[Taxonomy]
}

func NewStore(opts Options, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{opts: opts, log: log.Named("taxonomy")}
}

// NewStaticStore wraps an already built taxonomy, mostly for tests.
func NewStaticStore(t *Taxonomy) *Store {
	s := &Store{log: zap.NewNop()}
	s.cur.Store(t)
	return s
}

// Load builds the taxonomy and makes it current.
func (s *Store) Load() (*Taxonomy, error) {
	return s.load(s.opts.Strict)
}

func (s *Store) load(strict bool) (*Taxonomy, error) {
	t, err := s.build(strict)
	if err != nil {
		return nil, err
	}
	s.cur.Store(t)
	s.log.Info("taxonomy loaded",
		zap.String("source", t.Source),
		zap.Int("buckets", len(t.order)))
	return t, nil
}

// Reload replaces the current taxonomy. It never falls back to embedded
// data: on failure the previous taxonomy stays current.
func (s *Store) Reload() error {
	_, err := s.load(true)
	return err
}

// Current returns the loaded taxonomy, or nil before the first Load.
func (s *Store) Current() *Taxonomy {
	return s.cur.Load()
}

// Loaded reports whether a taxonomy is available.
func (s *Store) Loaded() bool {
	return s.cur.Load() != nil
}

// Lookup returns the bucket for (level, grade) from the current taxonomy.
func (s *Store) Lookup(level, grade string) (*Bucket, bool) {
	return s.Current().Lookup(level, grade)
}

func (s *Store) build(strict bool) (*Taxonomy, error) {
	if s.opts.Path == "" {
		return Default(s.opts.Variant)
	}

	t, err := s.loadFile()
	if err == nil {
		return applyVariant(t, s.opts.Variant)
	}

	// ambiguity is a data bug in the file, never masked by the fallback
	var amb *AmbiguityError
	if errors.As(err, &amb) || strict {
		return nil, err
	}
	s.log.Warn("taxonomy file unusable, using embedded data",
		zap.String("path", s.opts.Path), zap.Error(err))
	return Default(s.opts.Variant)
}

func (s *Store) loadFile() (*Taxonomy, error) {
	b, err := os.ReadFile(s.opts.Path)
	if err != nil {
		return nil, &LoadError{Source: s.opts.Path, Err: fmt.Errorf("read file: %w", err)}
	}
	return Parse(s.opts.Path, b)
}
