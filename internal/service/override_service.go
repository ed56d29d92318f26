package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/report-api/internal/dto"
	"github.com/noah-isme/report-api/internal/models"
	"github.com/noah-isme/report-api/internal/registry"
	"github.com/noah-isme/report-api/pkg/engine"
	appErrors "github.com/noah-isme/report-api/pkg/errors"
)

// Mutation failure messages.
const (
	MsgCreateFailed = "report.mutation.failed_to_create_report_definition"
	MsgUpdateFailed = "report.mutation.failed_to_update_report_definition"
)

type overrideStore interface {
	Replace(ctx context.Context, row *models.DefinitionOverride) (*models.DefinitionOverride, error)
	List(ctx context.Context, filter models.DefinitionFilter) ([]models.DefinitionOverride, int, error)
	GetByID(ctx context.Context, id string) (*models.DefinitionOverride, error)
	History(ctx context.Context, name string) ([]models.DefinitionOverride, error)
}

type definitionInvalidator interface {
	Invalidate(name string)
}

type descriptorLookup interface {
	Lookup(name string) (registry.Descriptor, bool)
}

// OverridePermissions lists the rights needed to create or update overrides.
// Empty lists impose no requirement beyond authentication.
type OverridePermissions struct {
	Add  []string
	Edit []string
}

// OverrideService manages effective-dated report definition versions.
type OverrideService struct {
	repo      overrideStore
	cache     definitionInvalidator
	reports   descriptorLookup
	perms     OverridePermissions
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewOverrideService constructs the service.
func NewOverrideService(repo overrideStore, cache definitionInvalidator, reports descriptorLookup, perms OverridePermissions, validate *validator.Validate, logger *zap.Logger) *OverrideService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverrideService{
		repo:      repo,
		cache:     cache,
		reports:   reports,
		perms:     perms,
		validator: validate,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Create starts a new version of a report definition.
func (s *OverrideService) Create(ctx context.Context, input dto.OverrideInput, principal *models.Principal) []dto.MutationError {
	return s.mutate(ctx, input, principal, false)
}

// Update replaces the open version identified by input.UUID.
func (s *OverrideService) Update(ctx context.Context, input dto.OverrideInput, principal *models.Principal) []dto.MutationError {
	return s.mutate(ctx, input, principal, true)
}

// CreateOrReplace closes the open version of input.Name, if any, and opens a
// new one. Failures are returned as mutation errors, never as panics or errors.
func (s *OverrideService) CreateOrReplace(ctx context.Context, input dto.OverrideInput, principal *models.Principal) []dto.MutationError {
	return s.mutate(ctx, input, principal, input.UUID != "")
}

func (s *OverrideService) mutate(ctx context.Context, input dto.OverrideInput, principal *models.Principal, update bool) (result []dto.MutationError) {
	message, perms := MsgCreateFailed, s.perms.Add
	if update {
		message, perms = MsgUpdateFailed, s.perms.Edit
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(message, zap.Any("panic", r), zap.String("report", input.Name))
			result = []dto.MutationError{{Message: message, Detail: fmt.Sprint(r)}}
		}
	}()

	if !principal.Authenticated() {
		return []dto.MutationError{{Message: message, Detail: appErrors.ErrAuthenticationRequired.Message}}
	}
	if !principal.HasPerms(perms...) {
		return []dto.MutationError{{Message: message, Detail: appErrors.ErrForbidden.Message}}
	}

	row, err := s.prepare(ctx, input, principal, update)
	if err == nil {
		err = s.replace(ctx, row)
	}
	if err != nil {
		s.logger.Warn(message, zap.String("report", input.Name), zap.Error(err))
		return []dto.MutationError{{Message: message, Detail: appErrors.Detail(err)}}
	}

	s.logger.Info("report definition replaced",
		zap.String("report", row.Name),
		zap.String("id", row.ID),
		zap.Time("validity_from", row.ValidityFrom),
		zap.String("principal", principal.ID))
	return nil
}

func (s *OverrideService) prepare(ctx context.Context, input dto.OverrideInput, principal *models.Principal, update bool) (*models.DefinitionOverride, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report definition payload")
	}

	if update {
		if input.UUID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "uuid is required")
		}
		current, err := s.repo.GetByID(ctx, input.UUID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "report definition not found")
			}
			return nil, err
		}
		if current.Name != input.Name || !current.Open() {
			return nil, appErrors.Clone(appErrors.ErrConflict, "report definition is not the current version of "+input.Name)
		}
	}

	definition := input.Definition
	if definition == "" && s.reports != nil {
		if desc, ok := s.reports.Lookup(input.Name); ok && desc.DefaultDefinition != "" {
			definition = desc.DefaultDefinition
		}
	}
	if definition == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "definition is required")
	}
	if _, err := engine.Parse([]byte(definition)); err != nil {
		return nil, err
	}

	row := &models.DefinitionOverride{
		Name:         input.Name,
		Engine:       models.EngineReportBro,
		Definition:   definition,
		ValidityFrom: s.now().UTC(),
	}
	if input.Engine != nil {
		row.Engine = *input.Engine
	}
	if input.ValidityFrom != nil {
		row.ValidityFrom = input.ValidityFrom.UTC()
	}
	id := principal.ID
	row.AuditUserID = &id
	return row, nil
}

// replace serialises writers for the same name in this process; the store's
// transaction serialises them across processes.
func (s *OverrideService) replace(ctx context.Context, row *models.DefinitionOverride) error {
	lock := s.lockFor(row.Name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.repo.Replace(ctx, row); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(row.Name)
	}
	return nil
}

func (s *OverrideService) lockFor(name string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}
	return lock
}

// List returns override versions matching the query.
func (s *OverrideService) List(ctx context.Context, query dto.OverrideQuery) ([]models.DefinitionOverride, *models.Pagination, error) {
	filter := models.DefinitionFilter{
		Name:        query.Name,
		Search:      query.Search,
		ShowHistory: query.ShowHistory,
		Page:        query.Page,
		PageSize:    query.PageSize,
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report definitions")
	}
	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return rows, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single override version.
func (s *OverrideService) Get(ctx context.Context, id string) (*models.DefinitionOverride, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report definition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report definition")
	}
	return row, nil
}

// History returns every version of a report definition ordered by start.
func (s *OverrideService) History(ctx context.Context, name string) ([]models.DefinitionOverride, error) {
	rows, err := s.repo.History(ctx, name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report definition history")
	}
	return rows, nil
}
