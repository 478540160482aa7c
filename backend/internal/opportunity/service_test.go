package opportunity

import (
	"context"
	"sort"
	"sync"
	"testing"

	"circlenet/backend/internal/cache"
	"circlenet/backend/internal/graph"
	apperrors "circlenet/backend/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGraph struct {
	mu        sync.Mutex
	items     map[string]*graph.Opportunity
	applied   map[string]map[string]*graph.Application
	feedCalls int
	lastQuery graph.OpportunityFilter
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{items: map[string]*graph.Opportunity{}, applied: map[string]map[string]*graph.Application{}}
}

func (f *fakeGraph) CreateOpportunity(_ context.Context, o *graph.Opportunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.items[o.UID] = &cp
	f.applied[o.UID] = map[string]*graph.Application{}
	return nil
}

func (f *fakeGraph) UpdateOpportunity(_ context.Context, o *graph.Opportunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.items[o.UID] = &cp
	return nil
}

func (f *fakeGraph) SetOpportunityStatus(_ context.Context, uid, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[uid].Status = status
	return nil
}

func (f *fakeGraph) GetOpportunity(_ context.Context, uid string) (*graph.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.items[uid]
	if !ok {
		return nil, apperrors.NewNotFound("opportunity", uid)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeGraph) DeleteOpportunity(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, uid)
	delete(f.applied, uid)
	return nil
}

func (f *fakeGraph) ListOpportunitiesByUser(_ context.Context, userUID string) ([]graph.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []graph.Opportunity{}
	for _, o := range f.items {
		if o.CreatedBy == userUID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeGraph) OpportunityFeed(_ context.Context, filter graph.OpportunityFilter) ([]graph.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedCalls++
	f.lastQuery = filter
	out := []graph.Opportunity{}
	for _, o := range f.items {
		if o.Status == graph.OpportunityOpen && o.CreatedBy != filter.ViewerUID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

func (f *fakeGraph) CreateApplication(_ context.Context, a *graph.Application) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.applied[a.OpportunityUID][a.ApplicantUID]; ok {
		return apperrors.Conflict("already applied to this opportunity")
	}
	cp := *a
	f.applied[a.OpportunityUID][a.ApplicantUID] = &cp
	return nil
}

func (f *fakeGraph) HasApplied(_ context.Context, opportunityUID, userUID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.applied[opportunityUID][userUID]
	return ok, nil
}

func (f *fakeGraph) ListApplications(_ context.Context, opportunityUID string) ([]graph.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []graph.Application{}
	for _, a := range f.applied[opportunityUID] {
		out = append(out, *a)
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *fakeGraph, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := cache.Connect(context.Background(), "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	g := newFakeGraph()
	return NewService(g, client), g, mr
}

func validInput() Input {
	return Input{
		Role:            "Backend Engineer",
		JobType:         JobFullTime,
		Location:        " Berlin ",
		ExperienceLevel: "senior",
		SalaryMin:       60000,
		SalaryMax:       90000,
		Currency:        "eur",
		Skills:          []string{"Go", " go ", "Neo4j", ""},
		CTALink:         "https://example.com/apply",
	}
}

func TestCreate_Normalizes(t *testing.T) {
	svc, _, _ := newTestService(t)

	o, err := svc.Create(context.Background(), "alice", validInput())
	require.NoError(t, err)
	assert.Equal(t, graph.OpportunityOpen, o.Status)
	assert.Equal(t, "alice", o.CreatedBy)
	assert.Equal(t, "Berlin", o.Location)
	assert.Equal(t, "EUR", o.Currency)
	assert.Equal(t, []string{"Go", "Neo4j"}, o.Skills)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]func(*Input){
		"missing role":    func(in *Input) { in.Role = "  " },
		"bad job type":    func(in *Input) { in.JobType = "gig" },
		"bad level":       func(in *Input) { in.ExperienceLevel = "wizard" },
		"inverted salary": func(in *Input) { in.SalaryMin, in.SalaryMax = 100, 50 },
		"negative salary": func(in *Input) { in.SalaryMin = -1 },
		"bad currency":    func(in *Input) { in.Currency = "EURO" },
		"non-http link":   func(in *Input) { in.CTALink = "javascript:alert(1)" },
		"relative link":   func(in *Input) { in.CTALink = "/apply" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := svc.Create(ctx, "alice", in)
			assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation), "got %v", err)
		})
	}
}

func TestOwnerOnlyMutations(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	o, err := svc.Create(ctx, "alice", validInput())
	require.NoError(t, err)

	_, err = svc.Update(ctx, "bob", o.UID, validInput())
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeForbidden))
	assert.True(t, apperrors.IsErrorType(svc.Close(ctx, "bob", o.UID), apperrors.ErrorTypeForbidden))
	assert.True(t, apperrors.IsErrorType(svc.Delete(ctx, "bob", o.UID), apperrors.ErrorTypeForbidden))
	_, err = svc.ListApplicants(ctx, "bob", o.UID)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeForbidden))

	in := validInput()
	in.Role = "Staff Engineer"
	updated, err := svc.Update(ctx, "alice", o.UID, in)
	require.NoError(t, err)
	assert.Equal(t, "Staff Engineer", updated.Role)
	assert.Equal(t, graph.OpportunityOpen, updated.Status)

	require.NoError(t, svc.Delete(ctx, "alice", o.UID))
	_, err = svc.Get(ctx, "alice", o.UID)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}

func TestApply(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	o, err := svc.Create(ctx, "alice", validInput())
	require.NoError(t, err)

	_, err = svc.Apply(ctx, "alice", o.UID, "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	app, err := svc.Apply(ctx, "bob", o.UID, "  I love graphs ")
	require.NoError(t, err)
	assert.Equal(t, "I love graphs", app.Note)

	_, err = svc.Apply(ctx, "bob", o.UID, "again")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConflict))

	detail, err := svc.Get(ctx, "bob", o.UID)
	require.NoError(t, err)
	assert.True(t, detail.HasApplied)
	assert.False(t, detail.IsOwner)

	applicants, err := svc.ListApplicants(ctx, "alice", o.UID)
	require.NoError(t, err)
	require.Len(t, applicants, 1)
	assert.Equal(t, "bob", applicants[0].ApplicantUID)

	require.NoError(t, svc.Close(ctx, "alice", o.UID))
	_, err = svc.Apply(ctx, "carol", o.UID, "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConflict))
}

func TestFeed_CachedAndInvalidated(t *testing.T) {
	svc, g, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "alice", validInput())
	require.NoError(t, err)

	page, err := svc.Feed(ctx, "bob", graph.OpportunityFilter{})
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Equal(t, "bob", g.lastQuery.ViewerUID)
	assert.Equal(t, defaultFeedLimit, g.lastQuery.Limit)

	_, err = svc.Feed(ctx, "bob", graph.OpportunityFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, g.feedCalls)

	// the poster never sees their own postings
	own, err := svc.Feed(ctx, "alice", graph.OpportunityFilter{})
	require.NoError(t, err)
	assert.Empty(t, own)
	assert.Equal(t, 2, g.feedCalls)

	in := validInput()
	in.Role = "Another"
	_, err = svc.Create(ctx, "carol", in)
	require.NoError(t, err)

	page, err = svc.Feed(ctx, "bob", graph.OpportunityFilter{})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, 3, g.feedCalls)
}

func TestFeed_ExpiresAfterTTL(t *testing.T) {
	svc, g, mr := newTestService(t)
	ctx := context.Background()

	_, err := svc.Feed(ctx, "bob", graph.OpportunityFilter{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, maxFeedLimit, g.lastQuery.Limit)

	mr.FastForward(FeedTTL + 1)
	_, err = svc.Feed(ctx, "bob", graph.OpportunityFilter{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 2, g.feedCalls)
}

func TestFeed_RejectsUnknownFilters(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Feed(context.Background(), "bob", graph.OpportunityFilter{JobType: "gig"})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
	_, err = svc.Feed(context.Background(), "bob", graph.OpportunityFilter{ExperienceLevel: "wizard"})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestFeed_WithoutCache(t *testing.T) {
	g := newFakeGraph()
	svc := NewService(g, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Feed(ctx, "bob", graph.OpportunityFilter{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, g.feedCalls)
}
