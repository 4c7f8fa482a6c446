// Package docservice loads archived render nodes, reconstructs them at the
// requested version, and annotates them with API changes.
package docservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/starford/perthro/internal/apperr"
	"github.com/starford/perthro/internal/changes"
	"github.com/starford/perthro/internal/checksum"
	"github.com/starford/perthro/internal/index"
	"github.com/starford/perthro/internal/rendernode"
	"github.com/starford/perthro/internal/storage"
	"github.com/starford/perthro/internal/versioning"
)

// Options tunes how documents are served.
type Options struct {
	// StrictHistory rejects explicit version requests for documents that
	// carry no version history.
	StrictHistory bool
	// DefaultLanguage picks the change ledger when neither the request nor
	// the document names an interface language.
	DefaultLanguage string
	// ShowAPIChanges enables API change annotation on document reads.
	ShowAPIChanges bool
}

// Query selects how a document is served.
type Query struct {
	// Version is the display name to reconstruct. Empty means current.
	Version string
	// Language selects the change ledger. Empty means the document's own
	// interface language, then Options.DefaultLanguage.
	Language string
	// CompareVersion is the version whose API changes annotate the result.
	// Empty means Version, then the document's current version.
	CompareVersion string
}

// DocumentView is a document as served at one version.
type DocumentView struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	// Version names the version Document reflects. Empty for unversioned
	// documents.
	Version        string            `json:"version"`
	CurrentVersion string            `json:"current_version"`
	Outcome        string            `json:"outcome"`
	Versions       []string          `json:"versions"`
	Document       json.RawMessage   `json:"document"`
	APIChanges     changes.ChangeMap `json:"api_changes,omitempty"`
	// Checksum identifies the stored file, not the reconstruction.
	Checksum string `json:"checksum"`
}

// VersionList is the version history of one document.
type VersionList struct {
	Path     string   `json:"path"`
	Current  string   `json:"current"`
	Versions []string `json:"versions"`
}

// DocumentListItem is a lightweight item in a list response.
type DocumentListItem struct {
	Path           string    `json:"path"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Kind           string    `json:"kind"`
	Role           string    `json:"role"`
	Language       string    `json:"language"`
	CurrentVersion string    `json:"current_version"`
	Versions       []string  `json:"versions"`
	Checksum       string    `json:"checksum"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Service coordinates storage, index, and reconstruction.
type Service struct {
	store   storage.Provider
	db      index.DocumentIndex
	opts    Options
	strict  *versioning.Reconstructor
	lenient *versioning.Reconstructor
	reads   singleflight.Group
	logger  *slog.Logger
}

// NewService creates a new document service.
func NewService(store storage.Provider, db index.DocumentIndex, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	strict := versioning.New()
	if opts.StrictHistory {
		strict = versioning.New(versioning.WithStrictHistory())
	}
	return &Service{
		store:   store,
		db:      db,
		opts:    opts,
		strict:  strict,
		lenient: versioning.New(),
		logger:  logger,
	}
}

// NormalizePath maps a request path to an archive path. Paths ending in
// .json under data/ are archive paths; anything else is a documentation URL
// such as "documentation/fazz/boo".
func NormalizePath(p string) (string, error) {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return "", fmt.Errorf("docservice: path is required: %w", apperr.ErrInvalidInput)
	}
	if strings.HasSuffix(p, ".json") {
		cleaned := path.Clean(p)
		if !strings.HasPrefix(cleaned, rendernode.DataDir+"/") {
			return "", fmt.Errorf("docservice: %s is outside %s/: %w", p, rendernode.DataDir, apperr.ErrInvalidInput)
		}
		return cleaned, nil
	}
	return rendernode.PathForURL(p), nil
}

// GetDocument reads the document at path and reconstructs it per q.
// Concurrent identical requests share one read.
func (s *Service) GetDocument(ctx context.Context, p string, q Query) (*DocumentView, error) {
	p, err := NormalizePath(p)
	if err != nil {
		return nil, err
	}
	key := strings.Join([]string{p, q.Version, q.Language, q.CompareVersion}, "\x00")
	v, err, shared := s.reads.Do(key, func() (any, error) {
		return s.getDocument(ctx, p, q)
	})
	if shared {
		sharedReadsTotal.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*DocumentView), nil
}

func (s *Service) getDocument(_ context.Context, p string, q Query) (*DocumentView, error) {
	data, err := s.read(p)
	if err != nil {
		return nil, err
	}
	res, err := s.reconstruct(p, data, q.Version)
	if err != nil {
		return nil, err
	}

	h, _ := versioning.ReadHistory(data)
	view := &DocumentView{
		Path:           p,
		URL:            rendernode.URLForPath(p),
		CurrentVersion: h.Current,
		Outcome:        res.Outcome.String(),
		Versions:       versioning.ListVersions(data),
		Document:       json.RawMessage(res.Document),
		Checksum:       checksum.Sum(data),
	}
	switch res.Outcome {
	case versioning.Patched:
		view.Version = q.Version
	case versioning.Head, versioning.UnknownVersion:
		view.Version = h.Current
	}

	if s.opts.ShowAPIChanges {
		apiChanges, err := s.apiChanges(p, res.Document, q, view)
		if err != nil {
			return nil, err
		}
		view.APIChanges = apiChanges
	}
	return view, nil
}

// APIChanges returns the changes version made to the symbols the document
// at path references, as seen from the document reconstructed at version.
// Unlike GetDocument it ignores Options.ShowAPIChanges.
func (s *Service) APIChanges(_ context.Context, p, version, language string) (changes.ChangeMap, error) {
	p, err := NormalizePath(p)
	if err != nil {
		return nil, err
	}
	if version == "" {
		return nil, fmt.Errorf("docservice: version is required: %w", apperr.ErrInvalidInput)
	}
	data, err := s.read(p)
	if err != nil {
		return nil, err
	}
	res, err := s.reconstruct(p, data, version)
	if err != nil {
		return nil, err
	}
	q := Query{Version: version, Language: language, CompareVersion: version}
	got, err := s.apiChanges(p, res.Document, q, &DocumentView{Version: version})
	if err != nil {
		return nil, err
	}
	if got == nil {
		got = changes.ChangeMap{}
	}
	return got, nil
}

// apiChanges resolves the ledger entries for the compared version onto the
// reference identifiers of doc.
func (s *Service) apiChanges(p string, doc []byte, q Query, view *DocumentView) (changes.ChangeMap, error) {
	compare := q.CompareVersion
	if compare == "" {
		compare = view.Version
	}
	if compare == "" {
		return nil, nil
	}

	node, err := rendernode.Parse(doc)
	if err != nil {
		return nil, fmt.Errorf("docservice: parse %s: %w", p, err)
	}
	language := q.Language
	if language == "" {
		language = node.Identifier.InterfaceLanguage
	}
	if language == "" {
		language = s.opts.DefaultLanguage
	}

	ledger, err := s.db.Ledger(language)
	if err != nil {
		return nil, err
	}
	resolved, comparisons := changes.ResolveCounted(changes.ForVersion(ledger, compare), node.References)
	referenceComparisons.Observe(float64(comparisons))
	return resolved, nil
}

// reconstruct replays the history of data up to version. Explicit version
// requests go through the configured reconstructor; current reads are
// always lenient.
func (s *Service) reconstruct(p string, data []byte, version string) (versioning.Result, error) {
	r := s.lenient
	if version != "" {
		r = s.strict
	}
	start := time.Now()
	res, err := r.Resolve(version, data)
	reconstructionDuration.Observe(time.Since(start).Seconds())

	var pe *versioning.PatchError
	switch {
	case errors.As(err, &pe):
		patchFailuresTotal.Inc()
		s.logger.Warn("docservice: version patch failed",
			slog.String("path", p),
			slog.String("version", pe.Version),
			slog.Int("entry", pe.Index),
			slog.Int("op", pe.Op),
			slog.String("error", err.Error()))
		return versioning.Result{}, fmt.Errorf("docservice: reconstruct %s at %s: %w: %w", p, version, apperr.ErrCorruptHistory, err)
	case errors.Is(err, versioning.ErrUnversioned):
		return versioning.Result{}, fmt.Errorf("docservice: %s: %w: %w", p, apperr.ErrInvalidInput, err)
	case err != nil:
		return versioning.Result{}, err
	}
	reconstructionsTotal.WithLabelValues(res.Outcome.String()).Inc()
	return res, nil
}

// ListVersions returns the version history of the document at path.
func (s *Service) ListVersions(_ context.Context, p string) (*VersionList, error) {
	p, err := NormalizePath(p)
	if err != nil {
		return nil, err
	}
	data, err := s.read(p)
	if err != nil {
		return nil, err
	}
	h, _ := versioning.ReadHistory(data)
	return &VersionList{Path: p, Current: h.Current, Versions: versioning.ListVersions(data)}, nil
}

// ArchiveVersions returns every version named by any indexed document.
func (s *Service) ArchiveVersions(_ context.Context) ([]string, error) {
	return s.db.Versions()
}

// NavigationChanges returns the navigator change markers for version, keyed
// by language. An empty language yields every language in the ledger.
func (s *Service) NavigationChanges(_ context.Context, version, language string) (map[string]changes.NavigationChanges, error) {
	if version == "" {
		return nil, fmt.Errorf("docservice: version is required: %w", apperr.ErrInvalidInput)
	}
	if language != "" {
		ledger, err := s.db.Ledger(language)
		if err != nil {
			return nil, err
		}
		return map[string]changes.NavigationChanges{
			language: changes.NavigationForVersion(ledger, version),
		}, nil
	}
	all, err := s.db.LanguageLedger()
	if err != nil {
		return nil, err
	}
	return changes.LanguageScoped(all, version), nil
}

// ListDocuments returns paginated documents.
func (s *Service) ListDocuments(_ context.Context, q index.ListQuery) ([]DocumentListItem, int, error) {
	rows, total, err := s.db.ListDocuments(q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]DocumentListItem, len(rows))
	for i, r := range rows {
		items[i] = DocumentListItem{
			Path:           r.Path,
			URL:            r.URL,
			Title:          r.Title,
			Kind:           r.Kind,
			Role:           r.Role,
			Language:       r.Language,
			CurrentVersion: r.CurrentVersion,
			Versions:       nonNilSlice(r.Versions),
			Checksum:       r.Checksum,
			UpdatedAt:      r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("docservice: query is required: %w", apperr.ErrInvalidInput)
	}
	return s.db.Search(query, limit)
}

// PutDocument publishes content at path. A non-empty ifMatch must equal the
// checksum of the stored file. created reports whether the file is new.
func (s *Service) PutDocument(ctx context.Context, p string, content []byte, ifMatch string) (view *DocumentView, created bool, err error) {
	p, err = NormalizePath(p)
	if err != nil {
		return nil, false, err
	}
	if err := validateDocument(content); err != nil {
		return nil, false, fmt.Errorf("docservice: %s: %w", p, err)
	}

	existing, err := s.store.Read(p)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if ifMatch != "" {
			return nil, false, fmt.Errorf("docservice: %s: %w", p, apperr.ErrNotFound)
		}
		created = true
	case err != nil:
		return nil, false, err
	case ifMatch != "" && ifMatch != checksum.Sum(existing):
		return nil, false, fmt.Errorf("docservice: %s: checksum mismatch: %w", p, apperr.ErrConflict)
	}

	if err := s.store.Write(p, content); err != nil {
		return nil, false, err
	}
	row, err := index.BuildRow(p, content, time.Now())
	if err != nil {
		return nil, false, err
	}
	if err := s.db.UpsertDocument(row); err != nil {
		return nil, false, err
	}
	s.logger.Info("docservice: document published", slog.String("path", p), slog.Bool("created", created))

	view, err = s.getDocument(ctx, p, Query{})
	return view, created, err
}

// DeleteDocument removes a document from storage and index.
func (s *Service) DeleteDocument(_ context.Context, p string) error {
	p, err := NormalizePath(p)
	if err != nil {
		return err
	}
	if err := s.store.Delete(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("docservice: %s: %w", p, apperr.ErrNotFound)
		}
		return err
	}
	return s.db.DeleteDocument(p)
}

// IndexFile parses data and upserts it into the index.
func (s *Service) IndexFile(p string, data []byte) error {
	row, err := index.BuildRow(p, data, time.Now())
	if err != nil {
		return err
	}
	return s.db.UpsertDocument(row)
}

func (s *Service) read(p string) ([]byte, error) {
	data, err := s.store.Read(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("docservice: %s: %w", p, apperr.ErrNotFound)
	}
	return data, err
}

// validateDocument checks that content is a JSON object whose full version
// history replays cleanly.
func validateDocument(content []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(content, &obj); err != nil || obj == nil {
		return fmt.Errorf("document must be a JSON object: %w", apperr.ErrInvalidInput)
	}
	h, ok := versioning.ReadHistory(content)
	if !ok || len(h.Entries) == 0 {
		return nil
	}
	deepest := h.Entries[len(h.Entries)-1].Version.DisplayName
	if _, err := versioning.New().Resolve(deepest, content); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrCorruptHistory, err)
	}
	return nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
