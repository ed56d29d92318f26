package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/report-api/internal/dto"
	"github.com/noah-isme/report-api/internal/models"
	"github.com/noah-isme/report-api/internal/registry"
	"github.com/noah-isme/report-api/internal/repository"
)

const minimalDefinition = `{"docElements":[{"id":1,"elementType":"text","x":0,"y":0,"width":100,"height":20,"content":"hello"}]}`

type memoryOverrideStore struct {
	mu         sync.Mutex
	rows       []models.DefinitionOverride
	replaceErr error
	histories  int
}

func (m *memoryOverrideStore) Replace(ctx context.Context, row *models.DefinitionOverride) (*models.DefinitionOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return nil, m.replaceErr
	}
	var closed *models.DefinitionOverride
	for i := range m.rows {
		current := &m.rows[i]
		if current.Name != row.Name || !current.Open() {
			continue
		}
		if row.ValidityFrom.Before(current.ValidityFrom) {
			return nil, repository.ErrValidityOrder
		}
		end := row.ValidityFrom
		current.ValidityTo = &end
		copied := *current
		closed = &copied
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	m.rows = append(m.rows, *row)
	return closed, nil
}

func (m *memoryOverrideStore) List(ctx context.Context, filter models.DefinitionFilter) ([]models.DefinitionOverride, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DefinitionOverride
	for _, row := range m.rows {
		if filter.Name != "" && row.Name != filter.Name {
			continue
		}
		if !filter.ShowHistory && !row.Open() {
			continue
		}
		out = append(out, row)
	}
	return out, len(out), nil
}

func (m *memoryOverrideStore) GetByID(ctx context.Context, id string) (*models.DefinitionOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ID == id {
			found := row
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryOverrideStore) History(ctx context.Context, name string) ([]models.DefinitionOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories++
	var out []models.DefinitionOverride
	for _, row := range m.rows {
		if row.Name == name {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidityFrom.Before(out[j].ValidityFrom) })
	return out, nil
}

func (m *memoryOverrideStore) ActiveAt(ctx context.Context, name string, asOf time.Time) (*models.DefinitionOverride, error) {
	history, _ := m.History(ctx, name)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ValidAt(asOf) {
			found := history[i]
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

type invalidationRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *invalidationRecorder) Invalidate(name string) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
}

type lookupStub map[string]registry.Descriptor

func (l lookupStub) Lookup(name string) (registry.Descriptor, bool) {
	d, ok := l[name]
	return d, ok
}

func newOverrideService(store *memoryOverrideStore, perms OverridePermissions) (*OverrideService, *invalidationRecorder) {
	cache := &invalidationRecorder{}
	reports := lookupStub{"claim_history": {Name: "claim_history", DefaultDefinition: minimalDefinition}}
	return NewOverrideService(store, cache, reports, perms, nil, zap.NewNop()), cache
}

func at(value string) *time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestOverrideCreateClosesPreviousVersion(t *testing.T) {
	store := &memoryOverrideStore{}
	svc, cache := newOverrideService(store, OverridePermissions{})
	user := models.NewPrincipal("u-1")

	errs := svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history", Definition: minimalDefinition, ValidityFrom: at("2020-01-01")}, user)
	require.Nil(t, errs)
	errs = svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history", Definition: minimalDefinition, ValidityFrom: at("2021-01-01")}, user)
	require.Nil(t, errs)

	history, err := svc.History(context.Background(), "claim_history")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, history[0].ValidityTo)
	assert.True(t, history[0].ValidityTo.Equal(history[1].ValidityFrom))
	assert.True(t, history[1].Open())
	require.NotNil(t, history[1].AuditUserID)
	assert.Equal(t, "u-1", *history[1].AuditUserID)
	assert.Equal(t, []string{"claim_history", "claim_history"}, cache.names)
}

func TestOverrideMutationRequiresAuthentication(t *testing.T) {
	svc, _ := newOverrideService(&memoryOverrideStore{}, OverridePermissions{})

	errs := svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history", Definition: minimalDefinition}, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, MsgCreateFailed, errs[0].Message)
	assert.Equal(t, "mutation.authentication_required", errs[0].Detail)
}

func TestOverrideMutationChecksPermissions(t *testing.T) {
	svc, _ := newOverrideService(&memoryOverrideStore{}, OverridePermissions{Add: []string{"131224"}, Edit: []string{"131225"}})

	errs := svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history", Definition: minimalDefinition}, models.NewPrincipal("u-1"))
	require.Len(t, errs, 1)
	assert.Equal(t, "unauthorized", errs[0].Detail)

	errs = svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history", Definition: minimalDefinition}, models.NewPrincipal("u-1", "131224"))
	assert.Nil(t, errs)
}

func TestOverrideUpdateRequiresCurrentVersion(t *testing.T) {
	store := &memoryOverrideStore{}
	svc, _ := newOverrideService(store, OverridePermissions{})
	user := models.NewPrincipal("u-1")
	ctx := context.Background()

	errs := svc.Update(ctx, dto.OverrideInput{Name: "claim_history", Definition: minimalDefinition}, user)
	require.Len(t, errs, 1)
	assert.Equal(t, MsgUpdateFailed, errs[0].Message)

	errs = svc.Update(ctx, dto.OverrideInput{UUID: uuid.NewString(), Name: "claim_history", Definition: minimalDefinition}, user)
	require.Len(t, errs, 1)
	assert.Equal(t, "report definition not found", errs[0].Detail)

	require.Nil(t, svc.Create(ctx, dto.OverrideInput{Name: "claim_history", Definition: minimalDefinition, ValidityFrom: at("2020-01-01")}, user))
	require.Nil(t, svc.Create(ctx, dto.OverrideInput{Name: "claim_history", Definition: minimalDefinition, ValidityFrom: at("2021-01-01")}, user))
	history, err := svc.History(ctx, "claim_history")
	require.NoError(t, err)

	errs = svc.CreateOrReplace(ctx, dto.OverrideInput{UUID: history[0].ID, Name: "claim_history", Definition: minimalDefinition}, user)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Detail, "not the current version")

	errs = svc.CreateOrReplace(ctx, dto.OverrideInput{UUID: history[1].ID, Name: "claim_history", Definition: minimalDefinition, ValidityFrom: at("2022-01-01")}, user)
	assert.Nil(t, errs)
}

func TestOverrideRejectsInvalidDefinition(t *testing.T) {
	svc, _ := newOverrideService(&memoryOverrideStore{}, OverridePermissions{})

	errs := svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history", Definition: `{"parameters":[]}`}, models.NewPrincipal("u-1"))
	require.Len(t, errs, 1)
	assert.Equal(t, "docElements missing", errs[0].Detail)
}

func TestOverrideSeedsDefinitionFromRegistry(t *testing.T) {
	store := &memoryOverrideStore{}
	svc, _ := newOverrideService(store, OverridePermissions{})

	require.Nil(t, svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history"}, models.NewPrincipal("u-1")))
	require.Len(t, store.rows, 1)
	assert.Equal(t, minimalDefinition, store.rows[0].Definition)

	errs := svc.Create(context.Background(), dto.OverrideInput{Name: "unknown_report"}, models.NewPrincipal("u-1"))
	require.Len(t, errs, 1)
	assert.Equal(t, "definition is required", errs[0].Detail)
}

func TestOverrideStoreFailureBecomesMutationError(t *testing.T) {
	store := &memoryOverrideStore{replaceErr: errors.New("connection reset")}
	svc, cache := newOverrideService(store, OverridePermissions{})

	errs := svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history", Definition: minimalDefinition}, models.NewPrincipal("u-1"))
	require.Len(t, errs, 1)
	assert.Equal(t, "connection reset", errs[0].Detail)
	assert.Empty(t, cache.names)
}

func TestOverrideConcurrentReplaceKeepsSingleOpenVersion(t *testing.T) {
	store := &memoryOverrideStore{}
	svc, _ := newOverrideService(store, OverridePermissions{})
	user := models.NewPrincipal("u-1")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var n int64
	svc.now = func() time.Time {
		store.mu.Lock()
		defer store.mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := dto.OverrideInput{Name: "claim_history", Definition: fmt.Sprintf(`{"docElements":[],"version":%d}`, i)}
			_ = svc.CreateOrReplace(context.Background(), input, user)
		}(i)
	}
	wg.Wait()

	history, err := store.History(context.Background(), "claim_history")
	require.NoError(t, err)
	require.NotEmpty(t, history)

	open := 0
	for i, row := range history {
		if row.Open() {
			open++
			continue
		}
		require.Less(t, i+1, len(history))
		assert.True(t, row.ValidityTo.Equal(history[i+1].ValidityFrom), "version %d must end where the next starts", i)
	}
	assert.Equal(t, 1, open)
}

func TestOverrideListReportsPagination(t *testing.T) {
	store := &memoryOverrideStore{}
	svc, _ := newOverrideService(store, OverridePermissions{})
	require.Nil(t, svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history", Definition: minimalDefinition}, models.NewPrincipal("u-1")))

	rows, page, err := svc.List(context.Background(), dto.OverrideQuery{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PageSize)
	assert.Equal(t, 1, page.TotalCount)

	_, err = svc.Get(context.Background(), "missing")
	require.Error(t, err)
}

func TestDefinitionResolveByDate(t *testing.T) {
	store := &memoryOverrideStore{}
	svc, _ := newOverrideService(store, OverridePermissions{})
	user := models.NewPrincipal("u-1")
	first := `{"docElements":[],"version":1}`
	second := `{"docElements":[],"version":2}`
	require.Nil(t, svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history", Definition: first, ValidityFrom: at("2020-01-01")}, user))
	require.Nil(t, svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history", Definition: second, ValidityFrom: at("2021-01-01")}, user))

	resolver := NewDefinitionService(store, DefinitionServiceConfig{}, nil, zap.NewNop())
	cases := []struct {
		date   string
		text   string
		source DefinitionSource
	}{
		{"2020-06-01", first, SourceOverride},
		{"2021-01-01", second, SourceOverride},
		{"2022-01-01", second, SourceOverride},
		{"2019-01-01", "default", SourceDefault},
	}
	for _, tc := range cases {
		resolved, err := resolver.Resolve(context.Background(), "claim_history", "default", *at(tc.date))
		require.NoError(t, err)
		assert.Equal(t, tc.text, resolved.Text, tc.date)
		assert.Equal(t, tc.source, resolved.Source, tc.date)
	}

	resolved, err := resolver.Resolve(context.Background(), "insuree_list", "", *at("2022-01-01"))
	require.NoError(t, err)
	assert.True(t, resolved.IsBuiltin())
}

func TestDefinitionCacheInvalidation(t *testing.T) {
	store := &memoryOverrideStore{}
	metrics := &cacheCounter{}
	resolver := NewDefinitionService(store, DefinitionServiceConfig{CacheSize: 8, CacheTTL: time.Minute}, metrics, zap.NewNop())
	svc := NewOverrideService(store, resolver, nil, OverridePermissions{}, nil, zap.NewNop())

	resolved, err := resolver.Resolve(context.Background(), "claim_history", "default", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, resolved.Source)
	_, err = resolver.Resolve(context.Background(), "claim_history", "default", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, store.histories)
	assert.Equal(t, 1, metrics.hits)

	require.Nil(t, svc.Create(context.Background(), dto.OverrideInput{Name: "claim_history", Definition: minimalDefinition, ValidityFrom: at("2020-01-01")}, models.NewPrincipal("u-1")))

	resolved, err = resolver.Resolve(context.Background(), "claim_history", "default", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, SourceOverride, resolved.Source)
	assert.Equal(t, 2, store.histories)
}

type cacheCounter struct {
	hits, misses int
}

func (c *cacheCounter) RecordCacheOperation(hit bool) {
	if hit {
		c.hits++
		return
	}
	c.misses++
}
