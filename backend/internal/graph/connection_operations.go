package graph

import (
	"context"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Connection Operations
// ============================================================================

// Shared RETURN for queries that bind s, c, rcv and optionally ci.
var connectionViewReturn = `
	MATCH (s)-[:HAS_PROFILE]->(sp:Profile), (rcv)-[:HAS_PROFILE]->(rp:Profile)
	OPTIONAL MATCH (c)-[:HAS_CIRCLE]->(ci:Circle)
	RETURN c {.*} AS connection, ci {.*} AS circle,
	       ` + summaryProjection("s", "sp") + ` AS sender,
	       ` + summaryProjection("rcv", "rp") + ` AS receiver
`

// CreateConnection stores a new request with its circle. Both users are
// locked first, so of two racing requests between the same pair only one
// finds no open connection and is created.
func (r *Repository) CreateConnection(ctx context.Context, conn *Connection, circle *Circle) error {
	return r.inWriteTx(ctx, "create_connection", func(tx neo4j.ManagedTransaction) error {
		first, second := conn.SenderUID, conn.ReceiverUID
		if second < first {
			first, second = second, first
		}
		for _, uid := range []string{first, second} {
			records, err := txCollect(ctx, tx, `
				MATCH (u:User {uid: $uid})
				SET u.connection_version = coalesce(u.connection_version, 0) + 1
				RETURN u.uid AS uid
			`, map[string]interface{}{"uid": uid})
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return apperrors.NewNotFound("user", uid)
			}
		}

		records, err := txCollect(ctx, tx, `
			MATCH (x:User)-[:SENT]->(c:Connection)-[:TO]->(y:User)
			WHERE ((x.uid = $a AND y.uid = $b) OR (x.uid = $b AND y.uid = $a))
			  AND c.status IN ['Received', 'Accepted']
			RETURN c.status AS status
			LIMIT 1
		`, map[string]interface{}{"a": conn.SenderUID, "b": conn.ReceiverUID})
		if err != nil {
			return err
		}
		if len(records) > 0 {
			if getStringFromRecord(records[0], "status") == string(StatusAccepted) {
				return apperrors.Conflict("already connected")
			}
			return apperrors.Conflict("a connection request is already pending")
		}

		records, err = txCollect(ctx, tx, `
			MATCH (s:User {uid: $sender}), (rcv:User {uid: $receiver})
			CREATE (s)-[:SENT]->(c:Connection {
				uid: $uid,
				sender_uid: $sender,
				receiver_uid: $receiver,
				status: $status,
				created_at: datetime($now),
				updated_at: datetime($now)
			})-[:TO]->(rcv)
			CREATE (c)-[:HAS_CIRCLE]->(:Circle {
				uid: $circleUID,
				circle_type: $circleType,
				relation: $relation,
				sender_sub_relation: $senderSub,
				receiver_sub_relation: $receiverSub
			})
			RETURN c {.*} AS connection
		`, map[string]interface{}{
			"uid":         conn.UID,
			"sender":      conn.SenderUID,
			"receiver":    conn.ReceiverUID,
			"status":      string(conn.Status),
			"circleUID":   circle.UID,
			"circleType":  circle.CircleType,
			"relation":    circle.Relation,
			"senderSub":   circle.SenderSubRelation,
			"receiverSub": circle.ReceiverSubRelation,
			"now":         nowString(),
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return apperrors.NewNotFound("user", conn.ReceiverUID)
		}
		*conn = connectionFromMap(getMapFromRecord(records[0], "connection"))
		return nil
	})
}

// GetConnection returns a connection with its circle and both parties
func (r *Repository) GetConnection(ctx context.Context, uid string) (*ConnectionView, error) {
	records, err := r.read(ctx, "get_connection", `
		MATCH (s:User)-[:SENT]->(c:Connection {uid: $uid})-[:TO]->(rcv:User)
	`+connectionViewReturn, map[string]interface{}{"uid": uid})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("connection", uid)
	}
	view := connectionViewFromRecord(records[0])
	return &view, nil
}

// SetConnectionStatus moves a connection to a new status
func (r *Repository) SetConnectionStatus(ctx context.Context, uid string, status ConnectionStatus) error {
	records, err := r.write(ctx, "set_connection_status", `
		MATCH (c:Connection {uid: $uid})
		SET c.status = $status, c.updated_at = datetime($now)
		RETURN c.uid AS uid
	`, map[string]interface{}{"uid": uid, "status": string(status), "now": nowString()})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("connection", uid)
	}
	return nil
}

// DeleteConnection removes a connection and its circle together
func (r *Repository) DeleteConnection(ctx context.Context, uid string) error {
	params := map[string]interface{}{"uid": uid}
	return r.inWriteTx(ctx, "delete_connection", func(tx neo4j.ManagedTransaction) error {
		records, err := txCollect(ctx, tx, `
			MATCH (c:Connection {uid: $uid})
			OPTIONAL MATCH (c)-[:HAS_CIRCLE]->(ci:Circle)
			RETURN count(ci) AS circles
		`, params)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return apperrors.NewNotFound("connection", uid)
		}
		if err := txExec(ctx, tx, `MATCH (:Connection {uid: $uid})-[:HAS_CIRCLE]->(ci:Circle) DETACH DELETE ci`, params); err != nil {
			return err
		}
		return txExec(ctx, tx, `MATCH (c:Connection {uid: $uid}) DETACH DELETE c`, params)
	})
}

// UpdateCircle overwrites the circle classification of a connection
func (r *Repository) UpdateCircle(ctx context.Context, connectionUID string, circle Circle) error {
	records, err := r.write(ctx, "update_circle", `
		MATCH (c:Connection {uid: $uid})-[:HAS_CIRCLE]->(ci:Circle)
		SET ci.circle_type = $circleType,
		    ci.relation = $relation,
		    ci.sender_sub_relation = $senderSub,
		    ci.receiver_sub_relation = $receiverSub,
		    c.updated_at = datetime($now)
		RETURN ci.uid AS uid
	`, map[string]interface{}{
		"uid":         connectionUID,
		"circleType":  circle.CircleType,
		"relation":    circle.Relation,
		"senderSub":   circle.SenderSubRelation,
		"receiverSub": circle.ReceiverSubRelation,
		"now":         nowString(),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("connection", connectionUID)
	}
	return nil
}

// ListConnections returns connections the user is party to. Empty status or
// circleType match everything.
func (r *Repository) ListConnections(ctx context.Context, userUID string, status ConnectionStatus, circleType string, skip, limit int) ([]ConnectionView, error) {
	records, err := r.read(ctx, "list_connections", `
		MATCH (s:User)-[:SENT]->(c:Connection)-[:TO]->(rcv:User)
		WHERE (s.uid = $uid OR rcv.uid = $uid)
		  AND ($status = '' OR c.status = $status)
		  AND ($circleType = '' OR EXISTS {
		        MATCH (c)-[:HAS_CIRCLE]->(x:Circle) WHERE x.circle_type = $circleType
		      })
		WITH s, c, rcv
		ORDER BY c.updated_at DESC
		SKIP $skip LIMIT $limit
	`+connectionViewReturn, map[string]interface{}{
		"uid":        userUID,
		"status":     string(status),
		"circleType": circleType,
		"skip":       skip,
		"limit":      limit,
	})
	if err != nil {
		return nil, err
	}
	return connectionViews(records), nil
}

// ListPending returns Received requests addressed to (incoming) or sent by
// the user.
func (r *Repository) ListPending(ctx context.Context, userUID string, incoming bool) ([]ConnectionView, error) {
	records, err := r.read(ctx, "list_pending", `
		MATCH (s:User)-[:SENT]->(c:Connection {status: 'Received'})-[:TO]->(rcv:User)
		WHERE ($incoming AND rcv.uid = $uid) OR (NOT $incoming AND s.uid = $uid)
		WITH s, c, rcv
		ORDER BY c.created_at DESC
	`+connectionViewReturn, map[string]interface{}{"uid": userUID, "incoming": incoming})
	if err != nil {
		return nil, err
	}
	return connectionViews(records), nil
}

// MutualConnections returns users with accepted connections to both a and b
func (r *Repository) MutualConnections(ctx context.Context, a, b string) ([]UserSummary, error) {
	records, err := r.read(ctx, "mutual_connections", `
		MATCH (ua:User {uid: $a})-[:SENT|TO]-(c1:Connection {status: 'Accepted'})-[:SENT|TO]-(m:User)
		MATCH (m)-[:SENT|TO]-(c2:Connection {status: 'Accepted'})-[:SENT|TO]-(ub:User {uid: $b})
		WHERE m <> ua AND m <> ub
		WITH DISTINCT m
		MATCH (m)-[:HAS_PROFILE]->(mp:Profile)
		RETURN `+summaryProjection("m", "mp")+` AS user
		ORDER BY m.username
	`, map[string]interface{}{"a": a, "b": b})
	if err != nil {
		return nil, err
	}
	users := make([]UserSummary, 0, len(records))
	for _, record := range records {
		users = append(users, userSummaryFromMap(getMapFromRecord(record, "user")))
	}
	return users, nil
}

// Recommendations returns friends of friends the user has no open or accepted
// connection with, ranked by the number of mutual connections.
func (r *Repository) Recommendations(ctx context.Context, userUID string, limit int) ([]Recommendation, error) {
	records, err := r.read(ctx, "connection_recommendations", `
		MATCH (me:User {uid: $uid})-[:SENT|TO]-(:Connection {status: 'Accepted'})-[:SENT|TO]-(friend:User)
		WHERE friend <> me
		MATCH (friend)-[:SENT|TO]-(:Connection {status: 'Accepted'})-[:SENT|TO]-(candidate:User)
		WHERE candidate <> me
		  AND NOT EXISTS {
		        MATCH (me)-[:SENT|TO]-(x:Connection)-[:SENT|TO]-(candidate)
		        WHERE x.status IN ['Received', 'Accepted']
		      }
		WITH candidate, count(DISTINCT friend) AS mutual
		MATCH (candidate)-[:HAS_PROFILE]->(cp:Profile)
		RETURN `+summaryProjection("candidate", "cp")+` AS user, mutual
		ORDER BY mutual DESC, candidate.username
		LIMIT $limit
	`, map[string]interface{}{"uid": userUID, "limit": limit})
	if err != nil {
		return nil, err
	}
	recs := make([]Recommendation, 0, len(records))
	for _, record := range records {
		recs = append(recs, Recommendation{
			User:        userSummaryFromMap(getMapFromRecord(record, "user")),
			MutualCount: getIntFromRecord(record, "mutual"),
		})
	}
	return recs, nil
}

// ConnectionStats counts accepted connections per circle type
func (r *Repository) ConnectionStats(ctx context.Context, userUID string) (map[string]int, error) {
	records, err := r.read(ctx, "connection_stats", `
		MATCH (:User {uid: $uid})-[:SENT|TO]-(c:Connection {status: 'Accepted'})-[:HAS_CIRCLE]->(ci:Circle)
		RETURN ci.circle_type AS circle, count(DISTINCT c) AS total
	`, map[string]interface{}{"uid": userUID})
	if err != nil {
		return nil, err
	}
	stats := map[string]int{}
	for _, record := range records {
		stats[getStringFromRecord(record, "circle")] = getIntFromRecord(record, "total")
	}
	return stats, nil
}

func connectionViews(records []*neo4j.Record) []ConnectionView {
	views := make([]ConnectionView, 0, len(records))
	for _, record := range records {
		views = append(views, connectionViewFromRecord(record))
	}
	return views
}

func connectionViewFromRecord(record *neo4j.Record) ConnectionView {
	return ConnectionView{
		Connection: connectionFromMap(getMapFromRecord(record, "connection")),
		Circle:     circleFromMap(getMapFromRecord(record, "circle")),
		Sender:     userSummaryFromMap(getMapFromRecord(record, "sender")),
		Receiver:   userSummaryFromMap(getMapFromRecord(record, "receiver")),
	}
}

func connectionFromMap(m map[string]interface{}) Connection {
	return Connection{
		UID:         getStringFromMap(m, "uid", ""),
		SenderUID:   getStringFromMap(m, "sender_uid", ""),
		ReceiverUID: getStringFromMap(m, "receiver_uid", ""),
		Status:      ConnectionStatus(getStringFromMap(m, "status", "")),
		CreatedAt:   getTimeFromMap(m, "created_at"),
		UpdatedAt:   getTimeFromMap(m, "updated_at"),
	}
}

func circleFromMap(m map[string]interface{}) Circle {
	return Circle{
		UID:                 getStringFromMap(m, "uid", ""),
		CircleType:          getStringFromMap(m, "circle_type", ""),
		Relation:            getStringFromMap(m, "relation", ""),
		SenderSubRelation:   getStringFromMap(m, "sender_sub_relation", ""),
		ReceiverSubRelation: getStringFromMap(m, "receiver_sub_relation", ""),
	}
}
