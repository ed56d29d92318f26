package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/noah-isme/report-api/internal/models"
	"github.com/noah-isme/report-api/pkg/engine"
)

// DefinitionSource tells where a resolved definition came from.
type DefinitionSource string

// Definition sources in resolution order.
const (
	SourceOverride DefinitionSource = "override"
	SourceDefault  DefinitionSource = "default"
	SourceBuiltin  DefinitionSource = "builtin"
)

// ResolvedDefinition is the template text a report renders with.
type ResolvedDefinition struct {
	Text     string
	Source   DefinitionSource
	Override *models.DefinitionOverride
}

// IsBuiltin reports whether the generic dump template was selected.
func (d ResolvedDefinition) IsBuiltin() bool {
	return d.Source == SourceBuiltin
}

type overrideHistoryReader interface {
	ActiveAt(ctx context.Context, name string, asOf time.Time) (*models.DefinitionOverride, error)
	History(ctx context.Context, name string) ([]models.DefinitionOverride, error)
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool)
}

// DefinitionServiceConfig tunes the history cache. A non-positive size disables
// it and every resolve asks the store for the active version.
type DefinitionServiceConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// DefinitionService picks the definition a report uses at a point in time.
type DefinitionService struct {
	repo    overrideHistoryReader
	cache   *expirable.LRU[string, []models.DefinitionOverride]
	metrics cacheMetrics
	logger  *zap.Logger
	now     func() time.Time

	// generations counts invalidations per name so a load that raced with
	// one is not cached.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewDefinitionService constructs the resolver.
func NewDefinitionService(repo overrideHistoryReader, cfg DefinitionServiceConfig, metrics cacheMetrics, logger *zap.Logger) *DefinitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &DefinitionService{repo: repo, metrics: metrics, logger: logger, now: time.Now, generations: make(map[string]uint64)}
	if cfg.CacheSize > 0 {
		svc.cache = expirable.NewLRU[string, []models.DefinitionOverride](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return svc
}

// Resolve returns the override valid at asOf, else fallback when non-empty,
// else the generic dump template. A zero asOf means now. When versions
// overlap the one with the latest start wins.
func (s *DefinitionService) Resolve(ctx context.Context, name, fallback string, asOf time.Time) (ResolvedDefinition, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	active, err := s.active(ctx, name, asOf)
	if err != nil {
		return ResolvedDefinition{}, err
	}

	switch {
	case active != nil:
		found := *active
		return ResolvedDefinition{Text: found.Definition, Source: SourceOverride, Override: &found}, nil
	case fallback != "":
		return ResolvedDefinition{Text: fallback, Source: SourceDefault}, nil
	default:
		return ResolvedDefinition{Text: engine.DumpTemplate(), Source: SourceBuiltin}, nil
	}
}

// Invalidate drops the cached history of name. A load of name already in
// flight will not be written back.
func (s *DefinitionService) Invalidate(name string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	s.generations[name]++
	s.cache.Remove(name)
	s.mu.Unlock()
}

func (s *DefinitionService) active(ctx context.Context, name string, asOf time.Time) (*models.DefinitionOverride, error) {
	if s.cache == nil {
		row, err := s.repo.ActiveAt(ctx, name, asOf)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			s.logger.Error("failed to load active report definition", zap.String("report", name), zap.Error(err))
			return nil, err
		}
		return row, nil
	}

	history, err := s.history(ctx, name)
	if err != nil {
		return nil, err
	}
	return latestValidAt(history, asOf), nil
}

func (s *DefinitionService) history(ctx context.Context, name string) ([]models.DefinitionOverride, error) {
	if rows, ok := s.cache.Get(name); ok {
		s.recordCache(true)
		return rows, nil
	}
	s.recordCache(false)

	s.mu.Lock()
	generation := s.generations[name]
	s.mu.Unlock()

	rows, err := s.repo.History(ctx, name)
	if err != nil {
		s.logger.Error("failed to load report definition history", zap.String("report", name), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	if s.generations[name] == generation {
		s.cache.Add(name, rows)
	}
	s.mu.Unlock()
	return rows, nil
}

// latestValidAt picks the version valid at asOf; the latest start wins on overlap.
func latestValidAt(rows []models.DefinitionOverride, asOf time.Time) *models.DefinitionOverride {
	var active *models.DefinitionOverride
	for i := range rows {
		row := &rows[i]
		if !row.ValidAt(asOf) {
			continue
		}
		if active == nil || row.ValidityFrom.After(active.ValidityFrom) {
			active = row
		}
	}
	return active
}

func (s *DefinitionService) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit)
	}
}
