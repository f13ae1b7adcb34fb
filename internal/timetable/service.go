// Package timetable assembles finished timetables: it fingerprints an
// upload, asks the extraction model about it once per fingerprint, recovers
// the schedule from the reply, normalizes every subject and stores the
// result.
package timetable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"timetabler/internal/cache"
	"timetabler/internal/extract"
	"timetabler/internal/feed"
	"timetabler/internal/intake"
	"timetabler/internal/metrics"
	"timetabler/internal/normalize"
	"timetabler/internal/parser"
	"timetabler/internal/taxonomy"
	"timetabler/pkg/models"
)

const (
	defaultTimeout      = 90 * time.Second
	DefaultPrefixLength = 1 << 20
)

// TaxonomySource yields the taxonomy snapshot used for one request.
type TaxonomySource interface {
	Current() *taxonomy.Taxonomy
}

// Store persists finished timetables. Save reports whether the record
// was new.
type Store interface {
	Save(ctx context.Context, rec Record) (bool, error)
}

type Publisher interface {
	Publish(ev feed.Event)
}

// Record is a stored timetable with the key it was extracted for.
type Record struct {
	models.Timetable
	SchoolLevel string
	Grade       string
	Kind        intake.Kind
	CreatedAt   time.Time
}

// Document is an upload as received.
type Document struct {
	Kind intake.Kind
	Data []byte
}

type Deps struct {
	Taxonomy   TaxonomySource
	Normalizer normalize.Normalizer
	Memo       *cache.Memo
	Extractor  extract.Extractor
	Store      Store     // optional
	Feed       Publisher // optional
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

type Options struct {
	// Timeout bounds one extraction call.
	Timeout time.Duration
	// PrefixLength is how many leading bytes of an upload take part in
	// its fingerprint.
	PrefixLength int
}

type Service struct {
	deps Deps
	opts Options
	log  *zap.Logger
}

func NewService(deps Deps, opts Options) *Service {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Memo == nil {
		deps.Memo = cache.New(cache.Options{MaxEntries: cache.DefaultMaxEntries, TTL: cache.DefaultTTL})
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PrefixLength == 0 {
		opts.PrefixLength = DefaultPrefixLength
	}
	return &Service{deps: deps, opts: opts, log: deps.Log.Named("timetable")}
}

// Process returns the timetable for doc under (level, grade). Only a
// cache miss reaches the extraction model; the reply is absorbed by the
// parser and normalizer whatever it holds, so the errors returned are
// intake errors, *extract.FailedError and storage errors.
func (s *Service) Process(ctx context.Context, doc Document, level, grade string) (models.Timetable, error) {
	if doc.Kind != intake.KindImage && doc.Kind != intake.KindSpreadsheet {
		return models.Timetable{}, intake.ErrUnsupportedType
	}
	tax := s.deps.Taxonomy.Current()
	key := cache.Fingerprint(level, grade, doc.Data, s.opts.PrefixLength)

	compute := func(ctx context.Context) (models.Document, error) {
		return s.extract(ctx, tax, doc, level, grade)
	}
	commit := func(ctx context.Context, tt models.Timetable) error {
		return s.store(ctx, Record{Timetable: tt, SchoolLevel: level, Grade: grade, Kind: doc.Kind})
	}
	tt, hit, err := s.deps.Memo.GetOrCommit(ctx, key, string(doc.Kind), compute, commit)
	if err != nil {
		return models.Timetable{}, err
	}
	s.deps.Metrics.CacheLookup(hit)
	if hit {
		s.log.Debug("cache hit", zap.String("id", tt.ID))
	}
	return tt, nil
}

// store persists and announces a freshly extracted timetable. It runs
// inside the memo flight, before the entry becomes visible to later
// lookups.
func (s *Service) store(ctx context.Context, rec Record) error {
	created := true
	if s.deps.Store != nil {
		var err error
		created, err = s.deps.Store.Save(ctx, rec)
		if err != nil {
			return fmt.Errorf("store timetable %s: %w", rec.ID, err)
		}
	}
	// an id already on disk was announced when it was first saved
	if created && s.deps.Feed != nil {
		s.deps.Feed.Publish(feed.Event{
			Type:        feed.TypeTimetableCreated,
			ID:          rec.ID,
			Title:       rec.Data.Title,
			SchoolLevel: rec.SchoolLevel,
			Grade:       rec.Grade,
			At:          time.Now().UTC(),
		})
	}
	return nil
}

func (s *Service) extract(ctx context.Context, tax *taxonomy.Taxonomy, doc Document, level, grade string) (models.Document, error) {
	bucket, _ := tax.Lookup(level, grade)
	req := extract.Request{Prompt: BuildPrompt(bucket, level, grade, doc.Kind)}

	switch doc.Kind {
	case intake.KindImage:
		png, err := intake.ToPNG(doc.Data)
		if err != nil {
			return models.Document{}, err
		}
		req.Image, req.ImageMIME = png, "image/png"
	case intake.KindSpreadsheet:
		text, err := intake.FlattenXLSX(doc.Data)
		if err != nil {
			return models.Document{}, err
		}
		req.Text = text
	}

	provider := s.deps.Extractor.Name()
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.deps.Extractor.Extract(ctx, req)
	took := time.Since(start)
	if err != nil {
		fe := extract.Fail(provider, err)
		outcome := "error"
		if fe.Timeout {
			outcome = "timeout"
		}
		s.deps.Metrics.ObserveExtraction(provider, outcome, took)
		s.log.Warn("extraction failed",
			zap.String("provider", provider),
			zap.Bool("timeout", fe.Timeout),
			zap.Duration("took", took),
			zap.Error(err))
		return models.Document{}, fe
	}
	s.deps.Metrics.ObserveExtraction(provider, "ok", took)

	out, tier := parser.ParseTier(raw)
	s.deps.Metrics.ParseTier(string(tier))
	unmatched := s.annotate(&out, tax, level, grade)

	s.log.Info("timetable extracted",
		zap.String("provider", provider),
		zap.String("school_level", level),
		zap.String("grade", grade),
		zap.String("kind", string(doc.Kind)),
		zap.String("parse_tier", string(tier)),
		zap.Int("entries", out.Entries()),
		zap.Int("unmatched", unmatched),
		zap.Duration("took", took))
	if tier == parser.TierFallback {
		s.log.Warn("extraction reply held no schedule", zap.Int("chars", len(raw)))
	}
	return out, nil
}

// annotate normalizes every entry in place and returns how many stayed
// unmatched.
func (s *Service) annotate(doc *models.Document, tax *taxonomy.Taxonomy, level, grade string) int {
	unmatched := 0
	for day, entries := range doc.Schedule {
		for i := range entries {
			e := &entries[i]
			if e.OriginalSubject == "" {
				e.OriginalSubject = e.Subject
			}
			r := s.deps.Normalizer.Normalize(e.Subject, level, grade, tax)
			e.NormalizedSubject = r.CanonicalName
			e.SubjectColor = r.Color
			e.IsUnmatched = r.IsUnmatched
			if r.IsUnmatched {
				unmatched++
			}
			s.deps.Metrics.EntryNormalized(string(r.Rule))
		}
		doc.Schedule[day] = entries
	}
	return unmatched
}

// IsClientError reports whether err stems from the upload itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownGrade) ||
		errors.Is(err, intake.ErrUnsupportedType) ||
		errors.Is(err, intake.ErrInvalidDocument)
}
