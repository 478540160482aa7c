package graph

import (
	"context"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Community Operations
// ============================================================================

const communityReturn = `
	OPTIONAL MATCH (:User)-[mem:MEMBER_OF]->(c)
	RETURN c {.*} AS community, count(mem) AS member_count
`

// CreateCommunity stores the community and makes the creator its admin
func (r *Repository) CreateCommunity(ctx context.Context, community *Community) error {
	records, err := r.write(ctx, "create_community", `
		MATCH (u:User {uid: $createdBy})
		CREATE (c:Community {
			uid: $uid,
			name: $name,
			description: $description,
			community_type: $communityType,
			room_id: $roomID,
			icon_key: $iconKey,
			created_by: $createdBy,
			created_at: datetime($now),
			updated_at: datetime($now)
		})
		CREATE (u)-[:MEMBER_OF {role: 'admin', joined_at: datetime($now), is_muted: false}]->(c)
		WITH c
	`+communityReturn, map[string]interface{}{
		"uid":           community.UID,
		"name":          community.Name,
		"description":   community.Description,
		"communityType": community.CommunityType,
		"roomID":        community.RoomID,
		"iconKey":       community.IconKey,
		"createdBy":     community.CreatedBy,
		"now":           nowString(),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("user", community.CreatedBy)
	}
	*community = communityFromRecord(records[0])
	return nil
}

// SetCommunityRoom stores the Matrix room backing a community
func (r *Repository) SetCommunityRoom(ctx context.Context, communityUID, roomID string) error {
	_, err := r.write(ctx, "set_community_room", `
		MATCH (c:Community {uid: $uid}) SET c.room_id = $roomID
	`, map[string]interface{}{"uid": communityUID, "roomID": roomID})
	return err
}

// UpdateCommunity applies the non-nil fields of update
func (r *Repository) UpdateCommunity(ctx context.Context, uid string, update CommunityUpdate) (*Community, error) {
	props := map[string]interface{}{}
	if update.Name != nil {
		props["name"] = *update.Name
	}
	if update.Description != nil {
		props["description"] = *update.Description
	}
	if update.CommunityType != nil {
		props["community_type"] = *update.CommunityType
	}
	if update.IconKey != nil {
		props["icon_key"] = *update.IconKey
	}

	records, err := r.write(ctx, "update_community", `
		MATCH (c:Community {uid: $uid})
		SET c += $props, c.updated_at = datetime($now)
		WITH c
	`+communityReturn, map[string]interface{}{"uid": uid, "props": props, "now": nowString()})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("community", uid)
	}
	c := communityFromRecord(records[0])
	return &c, nil
}

// GetCommunity returns a community with its member count
func (r *Repository) GetCommunity(ctx context.Context, uid string) (*Community, error) {
	records, err := r.read(ctx, "get_community", `
		MATCH (c:Community {uid: $uid})
	`+communityReturn, map[string]interface{}{"uid": uid})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("community", uid)
	}
	c := communityFromRecord(records[0])
	return &c, nil
}

// GetCommunityByRoom returns the community backed by a Matrix room, or nil
func (r *Repository) GetCommunityByRoom(ctx context.Context, roomID string) (*Community, error) {
	records, err := r.read(ctx, "get_community_by_room", `
		MATCH (c:Community {room_id: $roomID})
	`+communityReturn, map[string]interface{}{"roomID": roomID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	c := communityFromRecord(records[0])
	return &c, nil
}

// ListCommunitiesForUser returns the communities a user belongs to
func (r *Repository) ListCommunitiesForUser(ctx context.Context, userUID string) ([]Community, error) {
	records, err := r.read(ctx, "list_communities_for_user", `
		MATCH (:User {uid: $uid})-[:MEMBER_OF]->(c:Community)
		WITH c
		ORDER BY c.name
	`+communityReturn, map[string]interface{}{"uid": userUID})
	if err != nil {
		return nil, err
	}
	communities := make([]Community, 0, len(records))
	for _, record := range records {
		communities = append(communities, communityFromRecord(record))
	}
	return communities, nil
}

// GetMembership returns the user's membership, or nil when not a member
func (r *Repository) GetMembership(ctx context.Context, communityUID, userUID string) (*Membership, error) {
	records, err := r.read(ctx, "get_membership", `
		MATCH (:User {uid: $user})-[m:MEMBER_OF]->(:Community {uid: $community})
		RETURN m.role AS role, m.joined_at AS joined_at, m.is_muted AS is_muted
	`, map[string]interface{}{"user": userUID, "community": communityUID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &Membership{
		CommunityUID: communityUID,
		UserUID:      userUID,
		Role:         getStringFromRecord(records[0], "role"),
		JoinedAt:     getTimeFromRecord(records[0], "joined_at"),
		IsMuted:      getBoolFromRecord(records[0], "is_muted"),
	}, nil
}

// AddMember creates a membership; existing memberships are left unchanged
func (r *Repository) AddMember(ctx context.Context, communityUID, userUID, role string) error {
	records, err := r.write(ctx, "add_member", `
		MATCH (u:User {uid: $user}), (c:Community {uid: $community})
		MERGE (u)-[m:MEMBER_OF]->(c)
		ON CREATE SET m.role = $role, m.joined_at = datetime($now), m.is_muted = false
		RETURN m.role AS role
	`, map[string]interface{}{"user": userUID, "community": communityUID, "role": role, "now": nowString()})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("user", userUID)
	}
	return nil
}

// RemoveMember deletes a membership
func (r *Repository) RemoveMember(ctx context.Context, communityUID, userUID string) error {
	records, err := r.write(ctx, "remove_member", `
		MATCH (:User {uid: $user})-[m:MEMBER_OF]->(:Community {uid: $community})
		DELETE m
		RETURN count(*) AS removed
	`, map[string]interface{}{"user": userUID, "community": communityUID})
	if err != nil {
		return err
	}
	if len(records) == 0 || getIntFromRecord(records[0], "removed") == 0 {
		return apperrors.NewNotFound("membership", userUID)
	}
	return nil
}

// SetMemberRole changes a member's role
func (r *Repository) SetMemberRole(ctx context.Context, communityUID, userUID, role string) error {
	return r.setMembershipProperty(ctx, "set_member_role", communityUID, userUID, "role", role)
}

// SetMemberMuted mutes or unmutes a member
func (r *Repository) SetMemberMuted(ctx context.Context, communityUID, userUID string, muted bool) error {
	return r.setMembershipProperty(ctx, "set_member_muted", communityUID, userUID, "is_muted", muted)
}

func (r *Repository) setMembershipProperty(ctx context.Context, op, communityUID, userUID, key string, value interface{}) error {
	records, err := r.write(ctx, op, `
		MATCH (:User {uid: $user})-[m:MEMBER_OF]->(:Community {uid: $community})
		SET m += $props
		RETURN m.role AS role
	`, map[string]interface{}{
		"user":      userUID,
		"community": communityUID,
		"props":     map[string]interface{}{key: value},
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("membership", userUID)
	}
	return nil
}

// CountAdmins returns the number of admins of a community
func (r *Repository) CountAdmins(ctx context.Context, communityUID string) (int, error) {
	records, err := r.read(ctx, "count_admins", `
		MATCH (:User)-[m:MEMBER_OF {role: 'admin'}]->(:Community {uid: $community})
		RETURN count(m) AS admins
	`, map[string]interface{}{"community": communityUID})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return getIntFromRecord(records[0], "admins"), nil
}

// ListMembers returns the members of a community, admins first
func (r *Repository) ListMembers(ctx context.Context, communityUID string) ([]Member, error) {
	records, err := r.read(ctx, "list_members", `
		MATCH (u:User)-[m:MEMBER_OF]->(:Community {uid: $community})
		MATCH (u)-[:HAS_PROFILE]->(p:Profile)
		RETURN `+summaryProjection("u", "p")+` AS user, m.role AS role, m.joined_at AS joined_at, m.is_muted AS is_muted
		ORDER BY CASE m.role WHEN 'admin' THEN 0 WHEN 'moderator' THEN 1 ELSE 2 END, u.username
	`, map[string]interface{}{"community": communityUID})
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(records))
	for _, record := range records {
		members = append(members, Member{
			User:     userSummaryFromMap(getMapFromRecord(record, "user")),
			Role:     getStringFromRecord(record, "role"),
			JoinedAt: getTimeFromRecord(record, "joined_at"),
			IsMuted:  getBoolFromRecord(record, "is_muted"),
		})
	}
	return members, nil
}

// DeleteCommunity removes a community together with its agent assignments,
// agent memories and action logs in one transaction.
func (r *Repository) DeleteCommunity(ctx context.Context, uid string) error {
	params := map[string]interface{}{"uid": uid}
	return r.inWriteTx(ctx, "delete_community", func(tx neo4j.ManagedTransaction) error {
		records, err := txCollect(ctx, tx, `MATCH (c:Community {uid: $uid}) RETURN c.uid AS uid`, params)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return apperrors.NewNotFound("community", uid)
		}
		steps := []string{
			`MATCH (x:AgentCommunityAssignment {community_uid: $uid}) DETACH DELETE x`,
			`MATCH (x:AgentMemory {community_uid: $uid}) DETACH DELETE x`,
			`MATCH (x:AgentActionLog {community_uid: $uid}) DETACH DELETE x`,
			`MATCH (c:Community {uid: $uid}) DETACH DELETE c`,
		}
		for _, step := range steps {
			if err := txExec(ctx, tx, step, params); err != nil {
				return err
			}
		}
		return nil
	})
}

func communityFromRecord(record *neo4j.Record) Community {
	m := getMapFromRecord(record, "community")
	return Community{
		UID:           getStringFromMap(m, "uid", ""),
		Name:          getStringFromMap(m, "name", ""),
		Description:   getStringFromMap(m, "description", ""),
		CommunityType: getStringFromMap(m, "community_type", ""),
		RoomID:        getStringFromMap(m, "room_id", ""),
		IconKey:       getStringFromMap(m, "icon_key", ""),
		CreatedBy:     getStringFromMap(m, "created_by", ""),
		CreatedAt:     getTimeFromMap(m, "created_at"),
		UpdatedAt:     getTimeFromMap(m, "updated_at"),
		MemberCount:   getIntFromRecord(record, "member_count"),
	}
}
