package marketplace

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"circlenet/backend/internal/cache"
	"circlenet/backend/internal/graph"
	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Graph is the subset of the graph repository used by the marketplace
type Graph interface {
	CreateServiceListing(ctx context.Context, s *graph.ServiceListing) error
	UpdateServiceListing(ctx context.Context, s *graph.ServiceListing) error
	SetServiceStatus(ctx context.Context, uid, status string) error
	GetServiceListing(ctx context.Context, uid string) (*graph.ServiceListing, error)
	DeleteServiceListing(ctx context.Context, uid string) error
	ListServiceListingsByUser(ctx context.Context, userUID string) ([]graph.ServiceListing, error)
	ServiceFeed(ctx context.Context, filter graph.ServiceFilter) ([]graph.ServiceListing, error)
	CreateReview(ctx context.Context, review *graph.Review) (*graph.ServiceListing, error)
	ListReviews(ctx context.Context, serviceUID string) ([]graph.Review, error)
}

// Pricing models
const (
	PricingFixed      = "fixed"
	PricingHourly     = "hourly"
	PricingNegotiable = "negotiable"
)

const (
	// FeedTTL bounds how stale a cached feed page can be
	FeedTTL = 60 * time.Second

	feedNamespace    = "service"
	defaultFeedLimit = 20
	maxFeedLimit     = 100
	maxTitleLength   = 150
	maxDescription   = 5000
	maxCommentLength = 2000
	maxTags          = 20
	maxDeliveryDays  = 365
)

// Input is the editable part of a listing
type Input struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	PricingModel string   `json:"pricing_model"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency"`
	DeliveryDays int      `json:"delivery_days"`
	Tags         []string `json:"tags"`
}

// Service implements marketplace listings and reviews
type Service struct {
	graph  Graph
	feed   *cache.Feed[graph.ServiceListing]
	logger *zap.Logger
}

// NewService creates a marketplace service; c may be nil
func NewService(g Graph, c *cache.Client) *Service {
	return &Service{
		graph:  g,
		feed:   cache.NewFeed[graph.ServiceListing](c, feedNamespace, FeedTTL),
		logger: logger.Named("marketplace"),
	}
}

// Create stores an active listing owned by ownerUID
func (s *Service) Create(ctx context.Context, ownerUID string, in Input) (*graph.ServiceListing, error) {
	listing := &graph.ServiceListing{
		UID:       uuid.NewString(),
		Status:    graph.ListingActive,
		CreatedBy: ownerUID,
	}
	if err := applyInput(listing, in); err != nil {
		return nil, err
	}
	if err := s.graph.CreateServiceListing(ctx, listing); err != nil {
		return nil, err
	}
	s.feed.Invalidate(ctx)
	s.logger.Info("Created service listing", zap.String("service_uid", listing.UID), zap.String("owner_uid", ownerUID))
	return listing, nil
}

// Update replaces the editable fields of the owner's listing
func (s *Service) Update(ctx context.Context, ownerUID, uid string, in Input) (*graph.ServiceListing, error) {
	listing, err := s.owned(ctx, ownerUID, uid)
	if err != nil {
		return nil, err
	}
	if err := applyInput(listing, in); err != nil {
		return nil, err
	}
	if err := s.graph.UpdateServiceListing(ctx, listing); err != nil {
		return nil, err
	}
	s.feed.Invalidate(ctx)
	return listing, nil
}

// SetStatus activates or pauses the owner's listing
func (s *Service) SetStatus(ctx context.Context, ownerUID, uid, status string) error {
	if status != graph.ListingActive && status != graph.ListingPaused {
		return apperrors.Validation("status must be %s or %s", graph.ListingActive, graph.ListingPaused)
	}
	if _, err := s.owned(ctx, ownerUID, uid); err != nil {
		return err
	}
	if err := s.graph.SetServiceStatus(ctx, uid, status); err != nil {
		return err
	}
	s.feed.Invalidate(ctx)
	return nil
}

// Delete removes the owner's listing with its reviews
func (s *Service) Delete(ctx context.Context, ownerUID, uid string) error {
	if _, err := s.owned(ctx, ownerUID, uid); err != nil {
		return err
	}
	if err := s.graph.DeleteServiceListing(ctx, uid); err != nil {
		return err
	}
	s.feed.Invalidate(ctx)
	return nil
}

// Get returns a listing. Paused listings are visible to their owner only.
func (s *Service) Get(ctx context.Context, viewerUID, uid string) (*graph.ServiceListing, error) {
	listing, err := s.graph.GetServiceListing(ctx, uid)
	if err != nil {
		return nil, err
	}
	if listing.Status != graph.ListingActive && listing.CreatedBy != viewerUID {
		return nil, apperrors.NewNotFound("service", uid)
	}
	return listing, nil
}

// ListMine returns the caller's listings in every status
func (s *Service) ListMine(ctx context.Context, ownerUID string) ([]graph.ServiceListing, error) {
	return s.graph.ListServiceListingsByUser(ctx, ownerUID)
}

// Feed returns active listings, best rated first
func (s *Service) Feed(ctx context.Context, filter graph.ServiceFilter) ([]graph.ServiceListing, error) {
	if filter.MaxPrice != nil && *filter.MaxPrice < 0 {
		return nil, apperrors.Validation("max_price cannot be negative")
	}
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Tag = strings.TrimSpace(filter.Tag)
	filter.Text = strings.TrimSpace(filter.Text)
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultFeedLimit
	case filter.Limit > maxFeedLimit:
		filter.Limit = maxFeedLimit
	}

	return s.feed.Get(ctx, filter, func(ctx context.Context) ([]graph.ServiceListing, error) {
		return s.graph.ServiceFeed(ctx, filter)
	})
}

// Review rates an active listing by someone else. Each user reviews a
// listing once; the listing's running average is returned.
func (s *Service) Review(ctx context.Context, reviewerUID, uid string, rating int, comment string) (*graph.ServiceListing, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.Validation("rating must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, apperrors.Validation("comment must be at most %d characters", maxCommentLength)
	}
	listing, err := s.graph.GetServiceListing(ctx, uid)
	if err != nil {
		return nil, err
	}
	if listing.CreatedBy == reviewerUID {
		return nil, apperrors.Validation("cannot review your own service")
	}
	if listing.Status != graph.ListingActive {
		return nil, apperrors.Conflict("service is not accepting reviews")
	}

	updated, err := s.graph.CreateReview(ctx, &graph.Review{
		UID:         uuid.NewString(),
		ServiceUID:  uid,
		ReviewerUID: reviewerUID,
		Rating:      rating,
		Comment:     comment,
	})
	if err != nil {
		return nil, err
	}
	// ratings reorder the feed
	s.feed.Invalidate(ctx)
	return updated, nil
}

// ListReviews returns reviews of a listing, newest first
func (s *Service) ListReviews(ctx context.Context, uid string) ([]graph.Review, error) {
	if _, err := s.graph.GetServiceListing(ctx, uid); err != nil {
		return nil, err
	}
	return s.graph.ListReviews(ctx, uid)
}

func (s *Service) owned(ctx context.Context, ownerUID, uid string) (*graph.ServiceListing, error) {
	listing, err := s.graph.GetServiceListing(ctx, uid)
	if err != nil {
		return nil, err
	}
	if listing.CreatedBy != ownerUID {
		return nil, apperrors.Forbidden("only the provider can change this service")
	}
	return listing, nil
}

func applyInput(listing *graph.ServiceListing, in Input) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return apperrors.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return apperrors.Validation("title must be at most %d characters", maxTitleLength)
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return apperrors.Validation("category is required")
	}
	if utf8.RuneCountInString(in.Description) > maxDescription {
		return apperrors.Validation("description must be at most %d characters", maxDescription)
	}
	pricing := in.PricingModel
	if pricing == "" {
		pricing = PricingFixed
	}
	switch pricing {
	case PricingFixed, PricingHourly:
		if in.Price <= 0 {
			return apperrors.Validation("price must be positive for %s pricing", pricing)
		}
	case PricingNegotiable:
		if in.Price < 0 {
			return apperrors.Validation("price cannot be negative")
		}
	default:
		return apperrors.Validation("pricing model must be fixed, hourly or negotiable")
	}
	if in.DeliveryDays < 0 || in.DeliveryDays > maxDeliveryDays {
		return apperrors.Validation("delivery days must be between 0 and %d", maxDeliveryDays)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return apperrors.Validation("currency must be a three-letter code")
	}
	tags := cleanTags(in.Tags)
	if len(tags) > maxTags {
		return apperrors.Validation("at most %d tags are allowed", maxTags)
	}

	listing.Title = title
	listing.Description = strings.TrimSpace(in.Description)
	listing.Category = category
	listing.PricingModel = pricing
	listing.Price = in.Price
	listing.Currency = currency
	listing.DeliveryDays = in.DeliveryDays
	listing.Tags = tags
	return nil
}

func cleanTags(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
