package graph

import (
	"context"
	"strings"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Marketplace Operations
// ============================================================================

// CreateServiceListing stores a new marketplace listing
func (r *Repository) CreateServiceListing(ctx context.Context, s *ServiceListing) error {
	props := s.props()
	props["uid"] = s.UID
	props["status"] = s.Status
	props["created_by"] = s.CreatedBy
	props["rating_average"] = 0.0
	props["rating_count"] = 0

	records, err := r.write(ctx, "create_service", `
		MATCH (u:User {uid: $createdBy})
		CREATE (u)-[:OFFERS]->(s:Service)
		SET s += $props, s.created_at = datetime($now), s.updated_at = datetime($now)
		RETURN s {.*} AS service
	`, map[string]interface{}{"createdBy": s.CreatedBy, "props": props, "now": nowString()})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("user", s.CreatedBy)
	}
	*s = listingFromMap(getMapFromRecord(records[0], "service"))
	return nil
}

// UpdateServiceListing overwrites the editable fields of a listing
func (r *Repository) UpdateServiceListing(ctx context.Context, s *ServiceListing) error {
	records, err := r.write(ctx, "update_service", `
		MATCH (s:Service {uid: $uid})
		SET s += $props, s.updated_at = datetime($now)
		RETURN s {.*} AS service
	`, map[string]interface{}{"uid": s.UID, "props": s.props(), "now": nowString()})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("service", s.UID)
	}
	*s = listingFromMap(getMapFromRecord(records[0], "service"))
	return nil
}

// SetServiceStatus activates or pauses a listing
func (r *Repository) SetServiceStatus(ctx context.Context, uid, status string) error {
	records, err := r.write(ctx, "set_service_status", `
		MATCH (s:Service {uid: $uid})
		SET s.status = $status, s.updated_at = datetime($now)
		RETURN s.uid AS uid
	`, map[string]interface{}{"uid": uid, "status": status, "now": nowString()})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("service", uid)
	}
	return nil
}

// GetServiceListing returns a listing by uid
func (r *Repository) GetServiceListing(ctx context.Context, uid string) (*ServiceListing, error) {
	records, err := r.read(ctx, "get_service", `
		MATCH (s:Service {uid: $uid}) RETURN s {.*} AS service
	`, map[string]interface{}{"uid": uid})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("service", uid)
	}
	s := listingFromMap(getMapFromRecord(records[0], "service"))
	return &s, nil
}

// DeleteServiceListing removes a listing with its reviews
func (r *Repository) DeleteServiceListing(ctx context.Context, uid string) error {
	params := map[string]interface{}{"uid": uid}
	return r.inWriteTx(ctx, "delete_service", func(tx neo4j.ManagedTransaction) error {
		records, err := txCollect(ctx, tx, `MATCH (s:Service {uid: $uid}) RETURN s.uid AS uid`, params)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return apperrors.NewNotFound("service", uid)
		}
		if err := txExec(ctx, tx, `MATCH (rv:Review)-[:ABOUT]->(:Service {uid: $uid}) DETACH DELETE rv`, params); err != nil {
			return err
		}
		return txExec(ctx, tx, `MATCH (s:Service {uid: $uid}) DETACH DELETE s`, params)
	})
}

// ListServiceListingsByUser returns a user's listings, newest first
func (r *Repository) ListServiceListingsByUser(ctx context.Context, userUID string) ([]ServiceListing, error) {
	records, err := r.read(ctx, "list_services_by_user", `
		MATCH (:User {uid: $uid})-[:OFFERS]->(s:Service)
		RETURN s {.*} AS service
		ORDER BY s.created_at DESC
	`, map[string]interface{}{"uid": userUID})
	if err != nil {
		return nil, err
	}
	return listings(records), nil
}

// ServiceFeed returns active listings matching the filter, best rated first
func (r *Repository) ServiceFeed(ctx context.Context, filter ServiceFilter) ([]ServiceListing, error) {
	where, params := buildServiceFilter(filter)
	records, err := r.read(ctx, "service_feed", `
		MATCH (s:Service)
		WHERE `+where+`
		RETURN s {.*} AS service
		ORDER BY s.rating_average DESC, s.created_at DESC
		SKIP $skip LIMIT $limit
	`, params)
	if err != nil {
		return nil, err
	}
	return listings(records), nil
}

func buildServiceFilter(f ServiceFilter) (string, map[string]interface{}) {
	clauses := []string{"s.status = 'active'"}
	params := map[string]interface{}{
		"skip":  f.Skip,
		"limit": f.Limit,
	}
	if f.Category != "" {
		clauses = append(clauses, "toLower(s.category) = $category")
		params["category"] = strings.ToLower(f.Category)
	}
	if f.MaxPrice != nil {
		clauses = append(clauses, "s.price <= $maxPrice")
		params["maxPrice"] = *f.MaxPrice
	}
	if f.Tag != "" {
		clauses = append(clauses, "any(t IN s.tags WHERE toLower(t) = $tag)")
		params["tag"] = strings.ToLower(f.Tag)
	}
	if f.Text != "" {
		clauses = append(clauses, "(toLower(s.title) CONTAINS $text OR toLower(s.description) CONTAINS $text)")
		params["text"] = strings.ToLower(f.Text)
	}
	return strings.Join(clauses, " AND "), params
}

// ----------------------------------------------------------------------------
// Reviews
// ----------------------------------------------------------------------------

// CreateReview stores a review and folds its rating into the listing's
// running average. A second review by the same user is a conflict.
func (r *Repository) CreateReview(ctx context.Context, review *Review) (*ServiceListing, error) {
	records, err := r.write(ctx, "create_review", `
		MATCH (u:User {uid: $reviewer}), (s:Service {uid: $service})
		OPTIONAL MATCH (u)-[:WROTE]->(existing:Review)-[:ABOUT]->(s)
		WITH u, s, existing
		FOREACH (_ IN CASE WHEN existing IS NULL THEN [1] ELSE [] END |
			CREATE (u)-[:WROTE]->(:Review {
				uid: $uid,
				service_uid: $service,
				reviewer_uid: $reviewer,
				rating: $rating,
				comment: $comment,
				created_at: datetime($now)
			})-[:ABOUT]->(s)
			SET s.rating_average = (coalesce(s.rating_average, 0.0) * coalesce(s.rating_count, 0) + $rating)
			                       / (coalesce(s.rating_count, 0) + 1),
			    s.rating_count = coalesce(s.rating_count, 0) + 1)
		RETURN existing IS NULL AS created, s {.*} AS service
	`, map[string]interface{}{
		"uid":      review.UID,
		"reviewer": review.ReviewerUID,
		"service":  review.ServiceUID,
		"rating":   float64(review.Rating),
		"comment":  review.Comment,
		"now":      nowString(),
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("service", review.ServiceUID)
	}
	if !getBoolFromRecord(records[0], "created") {
		return nil, apperrors.Conflict("already reviewed this service")
	}
	s := listingFromMap(getMapFromRecord(records[0], "service"))
	return &s, nil
}

// ListReviews returns reviews of a listing, newest first
func (r *Repository) ListReviews(ctx context.Context, serviceUID string) ([]Review, error) {
	records, err := r.read(ctx, "list_reviews", `
		MATCH (rv:Review)-[:ABOUT]->(:Service {uid: $service})
		RETURN rv {.*} AS review
		ORDER BY rv.created_at DESC
	`, map[string]interface{}{"service": serviceUID})
	if err != nil {
		return nil, err
	}
	reviews := make([]Review, 0, len(records))
	for _, record := range records {
		m := getMapFromRecord(record, "review")
		reviews = append(reviews, Review{
			UID:         getStringFromMap(m, "uid", ""),
			ServiceUID:  getStringFromMap(m, "service_uid", ""),
			ReviewerUID: getStringFromMap(m, "reviewer_uid", ""),
			Rating:      getIntFromMap(m, "rating"),
			Comment:     getStringFromMap(m, "comment", ""),
			CreatedAt:   getTimeFromMap(m, "created_at"),
		})
	}
	return reviews, nil
}

func (s *ServiceListing) props() map[string]interface{} {
	return map[string]interface{}{
		"title":         s.Title,
		"description":   s.Description,
		"category":      s.Category,
		"pricing_model": s.PricingModel,
		"price":         s.Price,
		"currency":      s.Currency,
		"delivery_days": s.DeliveryDays,
		"tags":          nonNilStrings(s.Tags),
	}
}

func listings(records []*neo4j.Record) []ServiceListing {
	result := make([]ServiceListing, 0, len(records))
	for _, record := range records {
		result = append(result, listingFromMap(getMapFromRecord(record, "service")))
	}
	return result
}

func listingFromMap(m map[string]interface{}) ServiceListing {
	return ServiceListing{
		UID:           getStringFromMap(m, "uid", ""),
		Title:         getStringFromMap(m, "title", ""),
		Description:   getStringFromMap(m, "description", ""),
		Category:      getStringFromMap(m, "category", ""),
		PricingModel:  getStringFromMap(m, "pricing_model", ""),
		Price:         getFloat64FromMap(m, "price", 0),
		Currency:      getStringFromMap(m, "currency", ""),
		DeliveryDays:  getIntFromMap(m, "delivery_days"),
		Tags:          getStringSliceFromMap(m, "tags"),
		Status:        getStringFromMap(m, "status", ""),
		RatingAverage: getFloat64FromMap(m, "rating_average", 0),
		RatingCount:   getIntFromMap(m, "rating_count"),
		CreatedBy:     getStringFromMap(m, "created_by", ""),
		CreatedAt:     getTimeFromMap(m, "created_at"),
		UpdatedAt:     getTimeFromMap(m, "updated_at"),
	}
}
