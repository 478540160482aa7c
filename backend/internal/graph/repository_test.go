package graph

import (
	"context"
	"os"
	"testing"
	"time"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests require a running Neo4j instance.
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	uri := envOr("NEO4J_URI", "bolt://localhost:7687")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	driver, err := NewDriver(ctx, uri, envOr("NEO4J_USER", "neo4j"), envOr("NEO4J_PASSWORD", "password"))
	if err != nil {
		t.Skipf("Neo4j not reachable at %s: %v", uri, err)
	}
	t.Cleanup(func() { _ = driver.Close(context.Background()) })
	return NewRepository(driver, nil)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func createTestUser(t *testing.T, repo *Repository, prefix string) *User {
	t.Helper()
	ctx := context.Background()
	user := &User{
		UID:       uuid.NewString(),
		Username:  prefix + "_" + time.Now().Format("150405.000000"),
		Email:     prefix + "@example.test",
		FirstName: "Test",
		LastName:  prefix,
	}
	require.NoError(t, repo.CreateUser(ctx, user))
	t.Cleanup(func() {
		session := repo.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, `
			MATCH (u:User {uid: $uid})
			OPTIONAL MATCH (u)-[:HAS_PROFILE]->(p)
			OPTIONAL MATCH (p)-[]->(i)
			DETACH DELETE i, p, u`, map[string]interface{}{"uid": user.UID})
	})
	return user
}

func TestRepository_UserAndProfile(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	user := createTestUser(t, repo, "profile")

	profile, err := repo.GetProfile(ctx, user.UID)
	require.NoError(t, err)
	assert.Equal(t, user.UID, profile.UserUID)
	assert.Empty(t, profile.TopVibes)

	bio := "Graph enthusiast"
	interests := []string{"go", "neo4j"}
	updated, err := repo.UpdateProfile(ctx, user.UID, ProfileUpdate{Bio: &bio, Interests: &interests})
	require.NoError(t, err)
	assert.Equal(t, bio, updated.Bio)
	assert.Equal(t, interests, updated.Interests)

	edu := &Education{UID: uuid.NewString(), School: "Test University", Degree: "BSc"}
	require.NoError(t, repo.CreateEducation(ctx, user.UID, edu))
	list, err := repo.ListEducation(ctx, user.UID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Test University", list[0].School)

	require.NoError(t, repo.DeleteProfileItem(ctx, user.UID, KindEducation, edu.UID))
	err = repo.DeleteProfileItem(ctx, user.UID, KindEducation, edu.UID)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}

func TestRepository_ConnectionLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	alice := createTestUser(t, repo, "alice")
	bob := createTestUser(t, repo, "bob")

	conn := &Connection{UID: uuid.NewString(), SenderUID: alice.UID, ReceiverUID: bob.UID, Status: StatusReceived}
	circle := &Circle{UID: uuid.NewString(), CircleType: "Inner", Relation: "Family", SenderSubRelation: "Parent", ReceiverSubRelation: "Child"}
	require.NoError(t, repo.CreateConnection(ctx, conn, circle))

	reverse := &Connection{UID: uuid.NewString(), SenderUID: bob.UID, ReceiverUID: alice.UID, Status: StatusReceived}
	err := repo.CreateConnection(ctx, reverse, &Circle{UID: uuid.NewString(), CircleType: "Inner", Relation: "Family", SenderSubRelation: "Child", ReceiverSubRelation: "Parent"})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConflict), "one open connection per pair")

	require.NoError(t, repo.SetConnectionStatus(ctx, conn.UID, StatusAccepted))
	stats, err := repo.ConnectionStats(ctx, alice.UID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats["Inner"])

	require.NoError(t, repo.DeleteConnection(ctx, conn.UID))
	_, err = repo.GetConnection(ctx, conn.UID)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}

func detachDeleteOnCleanup(t *testing.T, repo *Repository, label, uid string) {
	t.Helper()
	t.Cleanup(func() {
		ctx := context.Background()
		session := repo.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, "MATCH (n:"+label+" {uid: $uid}) DETACH DELETE n", map[string]interface{}{"uid": uid})
	})
}

func createTestCommunity(t *testing.T, repo *Repository, adminUID string) *Community {
	t.Helper()
	community := &Community{UID: uuid.NewString(), Name: "Community " + adminUID[:8], CommunityType: "public", CreatedBy: adminUID}
	require.NoError(t, repo.CreateCommunity(context.Background(), community))
	detachDeleteOnCleanup(t, repo, "Community", community.UID)
	return community
}

func createTestAgent(t *testing.T, repo *Repository, ownerUID string) *Agent {
	t.Helper()
	agent := &Agent{UID: uuid.NewString(), Name: "Helper", AgentType: "moderator", Status: AgentActive, Capabilities: []string{"moderate_users"}, CreatedBy: ownerUID}
	require.NoError(t, repo.CreateAgent(context.Background(), agent))
	detachDeleteOnCleanup(t, repo, "Agent", agent.UID)
	return agent
}

func TestRepository_RecordVibe(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	alice := createTestUser(t, repo, "alice")
	bob := createTestUser(t, repo, "bob")
	carol := createTestUser(t, repo, "carol")

	_, _, err := repo.RecordVibe(ctx, VibeReaction{ReactorUID: alice.UID, TargetUID: carol.UID, Vibe: "Kind", Intensity: 5})
	require.NoError(t, err)
	score, top, err := repo.RecordVibe(ctx, VibeReaction{ReactorUID: bob.UID, TargetUID: carol.UID, Vibe: "Kind", Intensity: 2})
	require.NoError(t, err)
	assert.Equal(t, 3.5, score)
	require.Len(t, top, 1)
	assert.Equal(t, 2, top[0].Count)

	_, _, err = repo.RecordVibe(ctx, VibeReaction{ReactorUID: alice.UID, TargetUID: "missing", Vibe: "Kind", Intensity: 5})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}

func TestRepository_DeleteUserGraph_RecomputesVibesOfTargets(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	alice := createTestUser(t, repo, "alice")
	bob := createTestUser(t, repo, "bob")
	carol := createTestUser(t, repo, "carol")

	_, _, err := repo.RecordVibe(ctx, VibeReaction{ReactorUID: alice.UID, TargetUID: carol.UID, Vibe: "Kind", Intensity: 5})
	require.NoError(t, err)
	_, _, err = repo.RecordVibe(ctx, VibeReaction{ReactorUID: bob.UID, TargetUID: carol.UID, Vibe: "Funny", Intensity: 1})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteUserGraph(ctx, alice.UID))

	profile, err := repo.GetProfile(ctx, carol.UID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, profile.VibeScore)
	require.Len(t, profile.TopVibes, 1)
	assert.Equal(t, VibeAggregate{Vibe: "Funny", Count: 1, Total: 1, Average: 1}, profile.TopVibes[0])
}

func TestRepository_DeleteUserGraph_RemovesAgentsAndAssignments(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	alice := createTestUser(t, repo, "alice")
	bob := createTestUser(t, repo, "bob")
	community := createTestCommunity(t, repo, bob.UID)
	require.NoError(t, repo.AddMember(ctx, community.UID, alice.UID, RoleAdmin))

	aliceAgent := createTestAgent(t, repo, alice.UID)
	bobAgent := createTestAgent(t, repo, bob.UID)
	require.NoError(t, repo.CreateAssignment(ctx, &AgentCommunityAssignment{
		UID: uuid.NewString(), AgentUID: aliceAgent.UID, CommunityUID: community.UID,
		Permissions: []string{"moderate_users"}, Status: "active", AssignedBy: bob.UID,
	}))
	require.NoError(t, repo.CreateAssignment(ctx, &AgentCommunityAssignment{
		UID: uuid.NewString(), AgentUID: bobAgent.UID, CommunityUID: community.UID,
		Permissions: []string{"moderate_users"}, Status: "active", AssignedBy: alice.UID,
	}))

	require.NoError(t, repo.DeleteUserGraph(ctx, alice.UID))

	_, err := repo.GetAgent(ctx, aliceAgent.UID)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
	assignment, err := repo.GetAssignment(ctx, aliceAgent.UID, community.UID)
	require.NoError(t, err)
	assert.Nil(t, assignment)

	_, err = repo.GetAgent(ctx, bobAgent.UID)
	require.NoError(t, err, "agents owned by others stay")
	assignment, err = repo.GetAssignment(ctx, bobAgent.UID, community.UID)
	require.NoError(t, err)
	assert.Nil(t, assignment, "assignments made by the deleted user are withdrawn")
}

func TestRepository_DeleteUserGraph_LastAdminConflict(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	alice := createTestUser(t, repo, "alice")
	bob := createTestUser(t, repo, "bob")
	community := createTestCommunity(t, repo, alice.UID)
	require.NoError(t, repo.AddMember(ctx, community.UID, bob.UID, RoleMember))

	err := repo.DeleteUserGraph(ctx, alice.UID)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConflict))
	assert.Contains(t, apperrors.MessageOf(err), community.Name)
	_, err = repo.GetUser(ctx, alice.UID)
	require.NoError(t, err, "nothing is deleted on conflict")

	require.NoError(t, repo.SetMemberRole(ctx, community.UID, bob.UID, RoleAdmin))
	require.NoError(t, repo.DeleteUserGraph(ctx, alice.UID))
	admins, err := repo.CountAdmins(ctx, community.UID)
	require.NoError(t, err)
	assert.Equal(t, 1, admins)
}

func TestBuildOpportunityFilter(t *testing.T) {
	remote := true
	where, params := buildOpportunityFilter(OpportunityFilter{
		JobType:   "full_time",
		Location:  "Berlin",
		Remote:    &remote,
		Skill:     "Go",
		Text:      "Backend",
		ViewerUID: "u-1",
		Limit:     20,
	})

	assert.Contains(t, where, "o.status = 'open'")
	assert.Contains(t, where, "o.created_by <> $viewer")
	assert.Contains(t, where, "o.is_remote = $remote")
	assert.NotContains(t, where, "experience_level")
	assert.Equal(t, "berlin", params["location"])
	assert.Equal(t, "go", params["skill"])
	assert.Equal(t, "backend", params["text"])
	assert.Equal(t, 20, params["limit"])
}

func TestBuildOpportunityFilter_Empty(t *testing.T) {
	where, params := buildOpportunityFilter(OpportunityFilter{Limit: 10})
	assert.Equal(t, "o.status = 'open'", where)
	assert.Len(t, params, 2)
}

func TestBuildServiceFilter(t *testing.T) {
	maxPrice := 150.0
	where, params := buildServiceFilter(ServiceFilter{Category: "Design", MaxPrice: &maxPrice, Tag: "Logo"})

	assert.Contains(t, where, "s.status = 'active'")
	assert.Contains(t, where, "s.price <= $maxPrice")
	assert.Equal(t, "design", params["category"])
	assert.Equal(t, "logo", params["tag"])
	assert.Equal(t, 150.0, params["maxPrice"])
}

func TestProfileUpdateProps(t *testing.T) {
	bio := "hi"
	empty := []string(nil)
	props := ProfileUpdate{Bio: &bio, Interests: &empty}.props()

	assert.Equal(t, "hi", props["bio"])
	assert.Equal(t, []string{}, props["interests"])
	_, hasLocation := props["location"]
	assert.False(t, hasLocation)
}

func TestProfileFromMap_DecodesTopVibes(t *testing.T) {
	p := profileFromMap(map[string]interface{}{
		"uid":            "p-1",
		"vibe_score":     int64(4),
		"top_vibes_json": `[{"vibe":"Kind","count":2,"total":9,"average":4.5}]`,
		"interests":      []interface{}{"go"},
	})

	assert.Equal(t, 4.0, p.VibeScore)
	require.Len(t, p.TopVibes, 1)
	assert.Equal(t, "Kind", p.TopVibes[0].Vibe)
	assert.Equal(t, []string{"go"}, p.Interests)
}
