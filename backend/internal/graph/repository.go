package graph

import (
	"context"
	"time"

	"circlenet/backend/internal/metrics"
	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Repository handles all Neo4j database operations
type Repository struct {
	driver  neo4j.DriverWithContext
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewRepository creates a new graph repository. collector may be nil.
func NewRepository(driver neo4j.DriverWithContext, collector *metrics.Collector) *Repository {
	return &Repository{
		driver:  driver,
		logger:  logger.Named("graph"),
		metrics: collector,
	}
}

// NewDriver opens a Neo4j driver and verifies connectivity
func NewDriver(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	return driver, nil
}

// Close closes the Neo4j driver connection
func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// Ping verifies that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Repository) read(ctx context.Context, op, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	return r.run(ctx, neo4j.AccessModeRead, op, query, params)
}

func (r *Repository) write(ctx context.Context, op, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	return r.run(ctx, neo4j.AccessModeWrite, op, query, params)
}

func (r *Repository) run(ctx context.Context, mode neo4j.AccessMode, op, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	start := time.Now()
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode})
	defer session.Close(ctx)

	var records []*neo4j.Record
	result, err := session.Run(ctx, query, params)
	if err == nil {
		records, err = result.Collect(ctx)
	}
	r.metrics.ObserveGraph(op, time.Since(start), err)
	if err != nil {
		r.logger.Error("Graph query failed", zap.String("operation", op), zap.Error(err))
		return nil, apperrors.NewGraphQueryFailed(op, err)
	}
	return records, nil
}

// inWriteTx runs work inside one managed write transaction. Categorised errors
// returned by work pass through unchanged.
func (r *Repository) inWriteTx(ctx context.Context, op string, work func(tx neo4j.ManagedTransaction) error) error {
	start := time.Now()
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(tx)
	})
	r.metrics.ObserveGraph(op, time.Since(start), err)
	if err == nil {
		return nil
	}
	if apperrors.TypeOf(err) != "" {
		return err
	}
	r.logger.Error("Graph transaction failed", zap.String("operation", op), zap.Error(err))
	return apperrors.NewGraphQueryFailed(op, err)
}

func txExec(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]interface{}) error {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

func txCollect(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

// EnsureSchema creates the uniqueness constraints and lookup indexes
func (r *Repository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT user_uid IF NOT EXISTS FOR (n:User) REQUIRE n.uid IS UNIQUE",
		"CREATE CONSTRAINT user_username IF NOT EXISTS FOR (n:User) REQUIRE n.username IS UNIQUE",
		"CREATE CONSTRAINT profile_uid IF NOT EXISTS FOR (n:Profile) REQUIRE n.uid IS UNIQUE",
		"CREATE CONSTRAINT connection_uid IF NOT EXISTS FOR (n:Connection) REQUIRE n.uid IS UNIQUE",
		"CREATE CONSTRAINT community_uid IF NOT EXISTS FOR (n:Community) REQUIRE n.uid IS UNIQUE",
		"CREATE CONSTRAINT conversation_room IF NOT EXISTS FOR (n:Conversation) REQUIRE n.room_id IS UNIQUE",
		"CREATE CONSTRAINT message_event IF NOT EXISTS FOR (n:Message) REQUIRE n.event_id IS UNIQUE",
		"CREATE CONSTRAINT agent_uid IF NOT EXISTS FOR (n:Agent) REQUIRE n.uid IS UNIQUE",
		"CREATE CONSTRAINT opportunity_uid IF NOT EXISTS FOR (n:Opportunity) REQUIRE n.uid IS UNIQUE",
		"CREATE CONSTRAINT service_uid IF NOT EXISTS FOR (n:Service) REQUIRE n.uid IS UNIQUE",
		"CREATE INDEX community_room IF NOT EXISTS FOR (n:Community) ON (n.room_id)",
		"CREATE INDEX opportunity_status IF NOT EXISTS FOR (n:Opportunity) ON (n.status)",
		"CREATE INDEX service_status IF NOT EXISTS FOR (n:Service) ON (n.status)",
		"CREATE INDEX action_log_agent IF NOT EXISTS FOR (n:AgentActionLog) ON (n.agent_uid, n.community_uid)",
	}
	for _, stmt := range statements {
		if _, err := r.write(ctx, "ensure_schema", stmt, nil); err != nil {
			return err
		}
	}
	r.logger.Info("Graph schema ensured", zap.Int("statements", len(statements)))
	return nil
}
