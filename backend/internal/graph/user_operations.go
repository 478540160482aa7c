package graph

import (
	"context"
	"strings"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// ============================================================================
// User Operations
// ============================================================================

// CreateUser creates the User node together with its empty Profile
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	query := `
		CREATE (u:User {
			uid: $uid,
			username: $username,
			email: $email,
			first_name: $firstName,
			last_name: $lastName,
			created_at: datetime($now)
		})
		CREATE (u)-[:HAS_PROFILE]->(p:Profile {
			uid: $profileUID,
			user_uid: $uid,
			bio: '', designation: '', location: '', phone: '', gender: '', date_of_birth: '',
			interests: [], profile_pic_key: '', cover_pic_key: '',
			vibe_score: 0.0, top_vibes_json: '[]',
			updated_at: datetime($now)
		})
		RETURN u.created_at AS created_at
	`

	records, err := r.write(ctx, "create_user", query, map[string]interface{}{
		"uid":        user.UID,
		"username":   user.Username,
		"email":      strings.ToLower(user.Email),
		"firstName":  user.FirstName,
		"lastName":   user.LastName,
		"profileUID": uuid.NewString(),
		"now":        nowString(),
	})
	if err != nil {
		return err
	}
	if len(records) > 0 {
		user.CreatedAt = getTimeFromRecord(records[0], "created_at")
	}

	r.logger.Debug("Created user node", zap.String("user_id", user.UID))
	return nil
}

// GetUser returns the user node by uid
func (r *Repository) GetUser(ctx context.Context, uid string) (*User, error) {
	records, err := r.read(ctx, "get_user", `
		MATCH (u:User {uid: $uid})
		RETURN u {.*} AS user
	`, map[string]interface{}{"uid": uid})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("user", uid)
	}
	m := getMapFromRecord(records[0], "user")
	return &User{
		UID:       getStringFromMap(m, "uid", ""),
		Username:  getStringFromMap(m, "username", ""),
		Email:     getStringFromMap(m, "email", ""),
		FirstName: getStringFromMap(m, "first_name", ""),
		LastName:  getStringFromMap(m, "last_name", ""),
		CreatedAt: getTimeFromMap(m, "created_at"),
	}, nil
}

// UserExists reports whether a user node exists
func (r *Repository) UserExists(ctx context.Context, uid string) (bool, error) {
	records, err := r.read(ctx, "user_exists", `
		MATCH (u:User {uid: $uid}) RETURN count(u) > 0 AS exists
	`, map[string]interface{}{"uid": uid})
	if err != nil {
		return false, err
	}
	return len(records) > 0 && getBoolFromRecord(records[0], "exists"), nil
}

// GetUserSummaries returns summaries for the given uids, skipping unknown ones
func (r *Repository) GetUserSummaries(ctx context.Context, uids []string) ([]UserSummary, error) {
	records, err := r.read(ctx, "get_user_summaries", `
		MATCH (u:User)-[:HAS_PROFILE]->(p:Profile)
		WHERE u.uid IN $uids
		RETURN `+summaryProjection("u", "p")+` AS user
	`, map[string]interface{}{"uids": uids})
	if err != nil {
		return nil, err
	}
	users := make([]UserSummary, 0, len(records))
	for _, record := range records {
		users = append(users, userSummaryFromMap(getMapFromRecord(record, "user")))
	}
	return users, nil
}

// SearchUsers matches username, names and designation case-insensitively
func (r *Repository) SearchUsers(ctx context.Context, viewerUID, term string, limit int) ([]UserSummary, error) {
	records, err := r.read(ctx, "search_users", `
		MATCH (u:User)-[:HAS_PROFILE]->(p:Profile)
		WHERE u.uid <> $viewer
		  AND (toLower(u.username) CONTAINS $term
		       OR toLower(u.first_name + ' ' + u.last_name) CONTAINS $term
		       OR toLower(coalesce(p.designation, '')) CONTAINS $term)
		RETURN `+summaryProjection("u", "p")+` AS user
		ORDER BY CASE WHEN toLower(u.username) STARTS WITH $term THEN 0 ELSE 1 END, u.username
		LIMIT $limit
	`, map[string]interface{}{
		"viewer": viewerUID,
		"term":   strings.ToLower(strings.TrimSpace(term)),
		"limit":  limit,
	})
	if err != nil {
		return nil, err
	}
	users := make([]UserSummary, 0, len(records))
	for _, record := range records {
		users = append(users, userSummaryFromMap(getMapFromRecord(record, "user")))
	}
	return users, nil
}

// DeleteUserGraph removes a user with everything only that user owns in one
// transaction. Messages and reviews stay as history. The user's agents go
// with them, assignments they made are withdrawn and the vibe aggregates of
// everyone they reacted to are recomputed. Being the last admin of a
// community is a conflict, as it is for leaving one.
func (r *Repository) DeleteUserGraph(ctx context.Context, uid string) error {
	params := map[string]interface{}{"uid": uid}
	return r.inWriteTx(ctx, "delete_user_graph", func(tx neo4j.ManagedTransaction) error {
		records, err := txCollect(ctx, tx, `MATCH (u:User {uid: $uid}) RETURN u.uid AS uid`, params)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return apperrors.NewNotFound("user", uid)
		}

		records, err = txCollect(ctx, tx, `
			MATCH (:User {uid: $uid})-[:MEMBER_OF {role: 'admin'}]->(c:Community)
			WHERE NOT EXISTS {
				MATCH (other:User)-[:MEMBER_OF {role: 'admin'}]->(c) WHERE other.uid <> $uid
			}
			RETURN c.name AS name ORDER BY name
		`, params)
		if err != nil {
			return err
		}
		if len(records) > 0 {
			names := make([]string, 0, len(records))
			for _, record := range records {
				names = append(names, getStringFromRecord(record, "name"))
			}
			return apperrors.Conflict("you are the last admin of %s; promote another admin or delete the community first", strings.Join(names, ", "))
		}

		records, err = txCollect(ctx, tx, `
			MATCH (:User {uid: $uid})-[:VIBED]->(t:User)
			WHERE t.uid <> $uid
			RETURN DISTINCT t.uid AS target ORDER BY target
		`, params)
		if err != nil {
			return err
		}
		targets := make([]string, 0, len(records))
		for _, record := range records {
			target := getStringFromRecord(record, "target")
			if err := lockVibeTarget(ctx, tx, target); err != nil {
				return err
			}
			targets = append(targets, target)
		}

		steps := []string{
			`MATCH (:User {uid: $uid})-[v:VIBED]-() DELETE v`,
			`MATCH (:User {uid: $uid})-[:CREATED_AGENT]->(a:Agent)
			 OPTIONAL MATCH (x:AgentCommunityAssignment {agent_uid: a.uid})
			 DETACH DELETE x`,
			`MATCH (:User {uid: $uid})-[:CREATED_AGENT]->(a:Agent)
			 OPTIONAL MATCH (m:AgentMemory {agent_uid: a.uid})
			 DETACH DELETE m`,
			`MATCH (:User {uid: $uid})-[:CREATED_AGENT]->(a:Agent)
			 OPTIONAL MATCH (l:AgentActionLog {agent_uid: a.uid})
			 DETACH DELETE l`,
			`MATCH (:User {uid: $uid})-[:CREATED_AGENT]->(a:Agent) DETACH DELETE a`,
			`MATCH (x:AgentCommunityAssignment {assigned_by: $uid})
			 OPTIONAL MATCH (m:AgentMemory {agent_uid: x.agent_uid, community_uid: x.community_uid})
			 DETACH DELETE m, x`,
			`MATCH (:User {uid: $uid})-[:HAS_PROFILE]->(p:Profile)
			 OPTIONAL MATCH (p)-[:HAS_EDUCATION|HAS_EXPERIENCE|HAS_SKILL|HAS_ACHIEVEMENT]->(i)
			 DETACH DELETE i, p`,
			`MATCH (:User {uid: $uid})-[:SENT|TO]-(c:Connection)
			 OPTIONAL MATCH (c)-[:HAS_CIRCLE]->(ci:Circle)
			 DETACH DELETE ci, c`,
			`MATCH (:User {uid: $uid})-[:POSTED]->(o:Opportunity)
			 OPTIONAL MATCH (a:Application)-[:FOR]->(o)
			 DETACH DELETE a, o`,
			`MATCH (:User {uid: $uid})-[:APPLIED]->(a:Application) DETACH DELETE a`,
			`MATCH (:User {uid: $uid})-[:OFFERS]->(s:Service)
			 OPTIONAL MATCH (rv:Review)-[:ABOUT]->(s)
			 DETACH DELETE rv, s`,
			`MATCH (u:User {uid: $uid}) DETACH DELETE u`,
		}
		for _, step := range steps {
			if err := txExec(ctx, tx, step, params); err != nil {
				return err
			}
		}

		for _, target := range targets {
			if _, _, err := recomputeVibes(ctx, tx, target); err != nil {
				return err
			}
		}
		return nil
	})
}
