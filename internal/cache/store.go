// Package cache remembers which URLs were processed and how their content
// scored, so repeated queries skip redundant extraction and evaluation.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"ContentCurator/internal/domain"
	"ContentCurator/internal/logging"
	"ContentCurator/internal/ports"
)

const (
	urlFileName     = "processed_urls.json"
	contentFileName = "content_cache.json"
	lockFileName    = ".cache.lock"

	defaultURLMaxAge     = 7 * 24 * time.Hour
	defaultContentMaxAge = 30 * 24 * time.Hour
)

type urlEntry struct {
	ProcessedAt   float64           `json:"processed_at"`
	ProcessedDate string            `json:"processed_date"`
	Metadata      ports.URLMetadata `json:"metadata"`
}

type contentEntry struct {
	ProcessedAt   float64                 `json:"processed_at"`
	ProcessedDate string                  `json:"processed_date"`
	Result        domain.EvaluationResult `json:"result"`
}

// PurgeStats reports how many entries a purge removed.
type PurgeStats struct {
	URLsRemoved    int
	ContentRemoved int
}

// Stats reports entry counts.
type Stats struct {
	URLs         int
	Contents     int
	ValidURLs    int
	ValidContent int
}

// Store is a two-tier cache persisted as JSON files. Reads load immutable
// snapshots and never block; writers copy, modify and swap under writeMu.
type Store struct {
	dir           string
	urlMaxAge     time.Duration
	contentMaxAge time.Duration
	now           func() time.Time
	logger        *slog.Logger
	lock          *flock.Flock
	degraded      bool

	writeMu  sync.Mutex
	urls     atomic.Pointer[map[string]urlEntry]
	contents atomic.Pointer[map[string]contentEntry]
}

var _ ports.CacheStore = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithURLMaxAge sets the age used by GetURLMetadata.
func WithURLMaxAge(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.urlMaxAge = d
		}
	}
}

// WithContentMaxAge sets how long content results stay valid.
func WithContentMaxAge(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.contentMaxAge = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logging.OrNop(logger)
	}
}

// Open loads both maps from dir. Missing files start empty. An unreadable
// file degrades to an empty in-memory map; an unparseable file is an error.
func Open(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache: directory required")
	}
	s := &Store{
		dir:           dir,
		urlMaxAge:     defaultURLMaxAge,
		contentMaxAge: defaultContentMaxAge,
		now:           time.Now,
		logger:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lock = flock.New(filepath.Join(dir, lockFileName))

	urls := map[string]urlEntry{}
	if err := s.load(s.urlPath(), &urls); err != nil {
		return nil, err
	}
	contents := map[string]contentEntry{}
	if err := s.load(s.contentPath(), &contents); err != nil {
		return nil, err
	}
	// A file holding JSON null decodes to a nil map.
	if urls == nil {
		urls = map[string]urlEntry{}
	}
	if contents == nil {
		contents = map[string]contentEntry{}
	}
	s.urls.Store(&urls)
	s.contents.Store(&contents)

	s.logger.Debug("cache loaded",
		"dir", dir,
		"urls", len(urls),
		"contents", len(contents),
		"degraded", s.degraded)
	return s, nil
}

// Degraded reports whether a cache file could not be read at startup.
func (s *Store) Degraded() bool {
	return s.degraded
}

// HashContent returns the key used for the content tier.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HasURL reports whether url was processed less than maxAge ago.
func (s *Store) HasURL(url string, maxAge time.Duration) bool {
	entry, ok := (*s.urls.Load())[url]
	return ok && s.valid(entry.ProcessedAt, maxAge)
}

// GetURLMetadata returns metadata for a non-expired URL entry.
func (s *Store) GetURLMetadata(url string) (ports.URLMetadata, bool) {
	entry, ok := (*s.urls.Load())[url]
	if !ok || !s.valid(entry.ProcessedAt, s.urlMaxAge) {
		return ports.URLMetadata{}, false
	}
	return entry.Metadata, true
}

// PutURL records url as processed now.
func (s *Store) PutURL(url string, metadata ports.URLMetadata) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("cache: url required")
	}
	now := s.now()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := maps.Clone(*s.urls.Load())
	next[url] = urlEntry{
		ProcessedAt:   epoch(now),
		ProcessedDate: now.UTC().Format(time.RFC3339),
		Metadata:      metadata,
	}
	s.urls.Store(&next)
	return s.persist(s.urlPath(), next)
}

// HasContent reports whether text has a non-expired evaluation.
func (s *Store) HasContent(text string) bool {
	_, ok := s.contentByHash(HashContent(text))
	return ok
}

// GetContentResult returns the stored evaluation for text.
func (s *Store) GetContentResult(text string) (domain.EvaluationResult, bool) {
	return s.contentByHash(HashContent(text))
}

// PutContent stores result under the hash of text.
func (s *Store) PutContent(text string, result domain.EvaluationResult) error {
	hash := HashContent(text)
	if result.ContentHash == "" {
		result.ContentHash = hash
	}
	now := s.now()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := maps.Clone(*s.contents.Load())
	next[hash] = contentEntry{
		ProcessedAt:   epoch(now),
		ProcessedDate: now.UTC().Format(time.RFC3339),
		Result:        result,
	}
	s.contents.Store(&next)
	return s.persist(s.contentPath(), next)
}

// LookupURLResult follows a non-expired URL entry to the content result it
// was evaluated with.
func (s *Store) LookupURLResult(url string, maxAge time.Duration) (domain.EvaluationResult, bool) {
	entry, ok := (*s.urls.Load())[url]
	if !ok || !s.valid(entry.ProcessedAt, maxAge) || entry.Metadata.ContentHash == "" {
		return domain.EvaluationResult{}, false
	}
	return s.contentByHash(entry.Metadata.ContentHash)
}

// PurgeExpired drops entries older than maxAge from both tiers and persists
// the result. Concurrent readers keep seeing the previous snapshot until the
// swap.
func (s *Store) PurgeExpired(maxAge time.Duration) (PurgeStats, error) {
	var stats PurgeStats

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	urls := *s.urls.Load()
	keptURLs := make(map[string]urlEntry, len(urls))
	for k, v := range urls {
		if s.valid(v.ProcessedAt, maxAge) {
			keptURLs[k] = v
			continue
		}
		stats.URLsRemoved++
	}

	contents := *s.contents.Load()
	keptContents := make(map[string]contentEntry, len(contents))
	for k, v := range contents {
		if s.valid(v.ProcessedAt, maxAge) {
			keptContents[k] = v
			continue
		}
		stats.ContentRemoved++
	}

	s.urls.Store(&keptURLs)
	s.contents.Store(&keptContents)

	var errs []error
	if stats.URLsRemoved > 0 {
		errs = append(errs, s.persist(s.urlPath(), keptURLs))
	}
	if stats.ContentRemoved > 0 {
		errs = append(errs, s.persist(s.contentPath(), keptContents))
	}

	s.logger.Info("cache purged",
		"max_age", maxAge,
		"urls_removed", stats.URLsRemoved,
		"content_removed", stats.ContentRemoved)
	return stats, errors.Join(errs...)
}

// Stats counts stored and currently valid entries.
func (s *Store) Stats() Stats {
	urls := *s.urls.Load()
	contents := *s.contents.Load()
	st := Stats{URLs: len(urls), Contents: len(contents)}
	for _, e := range urls {
		if s.valid(e.ProcessedAt, s.urlMaxAge) {
			st.ValidURLs++
		}
	}
	for _, e := range contents {
		if s.valid(e.ProcessedAt, s.contentMaxAge) {
			st.ValidContent++
		}
	}
	return st
}

func (s *Store) contentByHash(hash string) (domain.EvaluationResult, bool) {
	entry, ok := (*s.contents.Load())[hash]
	if !ok || !s.valid(entry.ProcessedAt, s.contentMaxAge) {
		return domain.EvaluationResult{}, false
	}
	return entry.Result, true
}

func (s *Store) valid(processedAt float64, maxAge time.Duration) bool {
	age := epoch(s.now()) - processedAt
	return age < maxAge.Seconds()
}

func (s *Store) urlPath() string {
	return filepath.Join(s.dir, urlFileName)
}

func (s *Store) contentPath() string {
	return filepath.Join(s.dir, contentFileName)
}

func (s *Store) load(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		s.degraded = true
		s.logger.Error("cache file unreadable, continuing with empty cache",
			"path", path,
			"kind", domain.ErrCacheIOFailure,
			"error", err)
		return nil
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("cache: parse %s: %w", path, err)
	}
	return nil
}

// persist writes data atomically while holding the cross-process lock.
// Callers hold writeMu.
func (s *Store) persist(path string, data any) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return domain.NewItemError(domain.ErrCacheIOFailure, path, fmt.Errorf("marshal: %w", err))
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return s.writeFailed(path, fmt.Errorf("create cache directory: %w", err))
	}

	if err := s.lock.Lock(); err != nil {
		return s.writeFailed(path, fmt.Errorf("acquire lock: %w", err))
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return s.writeFailed(path, fmt.Errorf("create temp file: %w", err))
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return s.writeFailed(path, fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return s.writeFailed(path, fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return s.writeFailed(path, fmt.Errorf("rename temp file: %w", err))
	}
	return nil
}

func (s *Store) writeFailed(path string, err error) error {
	s.logger.Error("cache write failed, keeping in-memory state",
		"path", path,
		"kind", domain.ErrCacheIOFailure,
		"error", err)
	return domain.NewItemError(domain.ErrCacheIOFailure, path, err)
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
