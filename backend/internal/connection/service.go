package connection

import (
	"context"
	"strings"

	"circlenet/backend/internal/graph"
	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Graph is the subset of the graph repository used for connections
type Graph interface {
	GetUser(ctx context.Context, uid string) (*graph.User, error)
	CreateConnection(ctx context.Context, conn *graph.Connection, circle *graph.Circle) error
	GetConnection(ctx context.Context, uid string) (*graph.ConnectionView, error)
	SetConnectionStatus(ctx context.Context, uid string, status graph.ConnectionStatus) error
	DeleteConnection(ctx context.Context, uid string) error
	UpdateCircle(ctx context.Context, connectionUID string, circle graph.Circle) error
	ListConnections(ctx context.Context, userUID string, status graph.ConnectionStatus, circleType string, skip, limit int) ([]graph.ConnectionView, error)
	ListPending(ctx context.Context, userUID string, incoming bool) ([]graph.ConnectionView, error)
	MutualConnections(ctx context.Context, a, b string) ([]graph.UserSummary, error)
	Recommendations(ctx context.Context, userUID string, limit int) ([]graph.Recommendation, error)
	ConnectionStats(ctx context.Context, userUID string) (map[string]int, error)
}

// Pending directions
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

const (
	defaultListLimit      = 20
	maxListLimit          = 100
	defaultRecommendLimit = 10
	maxRecommendLimit     = 50
)

// RequestInput is a new connection request
type RequestInput struct {
	ReceiverUID string `json:"receiver_uid"`
	Circle      string `json:"circle"`
	Relation    string `json:"relation"`
	SubRelation string `json:"sub_relation"`
}

// ListFilter narrows ListConnections
type ListFilter struct {
	Status string
	Circle string
	Skip   int
	Limit  int
}

// Service manages connection requests and circles
type Service struct {
	graph    Graph
	taxonomy *Taxonomy
	logger   *zap.Logger
}

// NewService creates a connection service
func NewService(g Graph, taxonomy *Taxonomy) *Service {
	return &Service{graph: g, taxonomy: taxonomy, logger: logger.Named("connection")}
}

// Taxonomy returns the circle dictionary
func (s *Service) Taxonomy() *Taxonomy {
	return s.taxonomy
}

// SendRequest creates a Received connection from sender to the receiver
func (s *Service) SendRequest(ctx context.Context, senderUID string, in RequestInput) (*graph.ConnectionView, error) {
	receiver := strings.TrimSpace(in.ReceiverUID)
	if receiver == "" {
		return nil, apperrors.Validation("receiver is required")
	}
	if receiver == senderUID {
		return nil, apperrors.Validation("cannot connect with yourself")
	}
	class, err := s.taxonomy.Classify(in.Circle, in.Relation, in.SubRelation)
	if err != nil {
		return nil, err
	}
	if _, err := s.graph.GetUser(ctx, receiver); err != nil {
		return nil, err
	}

	conn := &graph.Connection{
		UID:         uuid.NewString(),
		SenderUID:   senderUID,
		ReceiverUID: receiver,
		Status:      graph.StatusReceived,
	}
	circle := &graph.Circle{
		UID:                 uuid.NewString(),
		CircleType:          class.Circle,
		Relation:            class.Relation,
		SenderSubRelation:   class.SubRelation,
		ReceiverSubRelation: class.Reverse,
	}
	// CreateConnection refuses a second open connection between the pair
	if err := s.graph.CreateConnection(ctx, conn, circle); err != nil {
		return nil, err
	}
	s.logger.Info("Connection requested",
		zap.String("connection", conn.UID),
		zap.String("sender", senderUID),
		zap.String("receiver", receiver),
		zap.String("circle", class.Circle))
	return s.graph.GetConnection(ctx, conn.UID)
}

// Accept moves a Received request to Accepted; only the receiver may accept
func (s *Service) Accept(ctx context.Context, userUID, connectionUID string) (*graph.ConnectionView, error) {
	return s.respond(ctx, userUID, connectionUID, graph.StatusAccepted)
}

// Reject moves a Received request to Rejected; only the receiver may reject
func (s *Service) Reject(ctx context.Context, userUID, connectionUID string) (*graph.ConnectionView, error) {
	return s.respond(ctx, userUID, connectionUID, graph.StatusRejected)
}

func (s *Service) respond(ctx context.Context, userUID, connectionUID string, status graph.ConnectionStatus) (*graph.ConnectionView, error) {
	view, err := s.graph.GetConnection(ctx, connectionUID)
	if err != nil {
		return nil, err
	}
	if view.ReceiverUID != userUID {
		return nil, apperrors.Forbidden("only the receiver can respond to this request")
	}
	if view.Status != graph.StatusReceived {
		return nil, apperrors.Conflict("request is already %s", strings.ToLower(string(view.Status)))
	}
	if err := s.graph.SetConnectionStatus(ctx, connectionUID, status); err != nil {
		return nil, err
	}
	view.Status = status
	s.logger.Info("Connection request answered",
		zap.String("connection", connectionUID),
		zap.String("status", string(status)))
	return view, nil
}

// Cancel withdraws a pending request; only the sender may cancel
func (s *Service) Cancel(ctx context.Context, userUID, connectionUID string) error {
	view, err := s.graph.GetConnection(ctx, connectionUID)
	if err != nil {
		return err
	}
	if view.SenderUID != userUID {
		return apperrors.Forbidden("only the sender can cancel this request")
	}
	if view.Status != graph.StatusReceived {
		return apperrors.Conflict("request is already %s", strings.ToLower(string(view.Status)))
	}
	return s.graph.SetConnectionStatus(ctx, connectionUID, graph.StatusCancelled)
}

// Remove deletes an accepted connection and its circle
func (s *Service) Remove(ctx context.Context, userUID, connectionUID string) error {
	view, err := s.graph.GetConnection(ctx, connectionUID)
	if err != nil {
		return err
	}
	if !isParty(view, userUID) {
		return apperrors.Forbidden("not a party of this connection")
	}
	if view.Status != graph.StatusAccepted {
		return apperrors.Conflict("only accepted connections can be removed")
	}
	if err := s.graph.DeleteConnection(ctx, connectionUID); err != nil {
		return err
	}
	s.logger.Info("Connection removed", zap.String("connection", connectionUID), zap.String("by", userUID))
	return nil
}

// UpdateCircle reclassifies a connection. The caller's side gets the chosen
// sub-relation and the other side gets its reverse.
func (s *Service) UpdateCircle(ctx context.Context, userUID, connectionUID, circle, relation, subRelation string) (*graph.ConnectionView, error) {
	class, err := s.taxonomy.Classify(circle, relation, subRelation)
	if err != nil {
		return nil, err
	}
	view, err := s.graph.GetConnection(ctx, connectionUID)
	if err != nil {
		return nil, err
	}
	if !isParty(view, userUID) {
		return nil, apperrors.Forbidden("not a party of this connection")
	}
	if view.Status != graph.StatusReceived && view.Status != graph.StatusAccepted {
		return nil, apperrors.Conflict("connection is %s", strings.ToLower(string(view.Status)))
	}

	updated := graph.Circle{
		UID:        view.Circle.UID,
		CircleType: class.Circle,
		Relation:   class.Relation,
	}
	if view.SenderUID == userUID {
		updated.SenderSubRelation, updated.ReceiverSubRelation = class.SubRelation, class.Reverse
	} else {
		updated.SenderSubRelation, updated.ReceiverSubRelation = class.Reverse, class.SubRelation
	}
	if err := s.graph.UpdateCircle(ctx, connectionUID, updated); err != nil {
		return nil, err
	}
	view.Circle = updated
	return view, nil
}

// ListConnections pages through the user's connections
func (s *Service) ListConnections(ctx context.Context, userUID string, f ListFilter) ([]graph.ConnectionView, error) {
	status := graph.StatusAccepted
	if f.Status != "" {
		parsed, ok := parseStatus(f.Status)
		if !ok {
			return nil, apperrors.Validation("unknown status %q", f.Status)
		}
		status = parsed
	}
	circle := ""
	if f.Circle != "" {
		name, ok := s.taxonomy.HasCircle(f.Circle)
		if !ok {
			return nil, apperrors.Validation("unknown circle %q", f.Circle)
		}
		circle = name
	}
	if f.Skip < 0 {
		return nil, apperrors.Validation("skip must not be negative")
	}
	return s.graph.ListConnections(ctx, userUID, status, circle, f.Skip, clampLimit(f.Limit, defaultListLimit, maxListLimit))
}

// ListPending returns Received requests addressed to or sent by the user
func (s *Service) ListPending(ctx context.Context, userUID, direction string) ([]graph.ConnectionView, error) {
	switch strings.ToLower(direction) {
	case "", DirectionIncoming:
		return s.graph.ListPending(ctx, userUID, true)
	case DirectionOutgoing:
		return s.graph.ListPending(ctx, userUID, false)
	default:
		return nil, apperrors.Validation("direction must be %s or %s", DirectionIncoming, DirectionOutgoing)
	}
}

// MutualConnections lists users accepted-connected to both
func (s *Service) MutualConnections(ctx context.Context, userUID, otherUID string) ([]graph.UserSummary, error) {
	if otherUID == "" || otherUID == userUID {
		return nil, apperrors.Validation("a different user is required")
	}
	if _, err := s.graph.GetUser(ctx, otherUID); err != nil {
		return nil, err
	}
	return s.graph.MutualConnections(ctx, userUID, otherUID)
}

// Recommendations suggests friends of friends ranked by mutual count
func (s *Service) Recommendations(ctx context.Context, userUID string, limit int) ([]graph.Recommendation, error) {
	return s.graph.Recommendations(ctx, userUID, clampLimit(limit, defaultRecommendLimit, maxRecommendLimit))
}

// Stats counts accepted connections per circle, with every circle present
func (s *Service) Stats(ctx context.Context, userUID string) (map[string]int, error) {
	counts, err := s.graph.ConnectionStats(ctx, userUID)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int, len(s.taxonomy.Circles)+1)
	total := 0
	for _, name := range s.taxonomy.CircleNames() {
		stats[name] = counts[name]
		total += counts[name]
	}
	stats["total"] = total
	return stats, nil
}

func isParty(view *graph.ConnectionView, userUID string) bool {
	return view.SenderUID == userUID || view.ReceiverUID == userUID
}

func parseStatus(raw string) (graph.ConnectionStatus, bool) {
	for _, st := range []graph.ConnectionStatus{graph.StatusReceived, graph.StatusAccepted, graph.StatusRejected, graph.StatusCancelled} {
		if strings.EqualFold(string(st), raw) {
			return st, true
		}
	}
	return "", false
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
