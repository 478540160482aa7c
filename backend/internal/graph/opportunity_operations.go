package graph

import (
	"context"
	"strings"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Opportunity Operations
// ============================================================================

// CreateOpportunity stores a new posting owned by CreatedBy
func (r *Repository) CreateOpportunity(ctx context.Context, o *Opportunity) error {
	props := o.props()
	props["uid"] = o.UID
	props["status"] = o.Status
	props["created_by"] = o.CreatedBy

	records, err := r.write(ctx, "create_opportunity", `
		MATCH (u:User {uid: $createdBy})
		CREATE (u)-[:POSTED]->(o:Opportunity)
		SET o += $props, o.created_at = datetime($now), o.updated_at = datetime($now)
		RETURN o {.*} AS opportunity
	`, map[string]interface{}{"createdBy": o.CreatedBy, "props": props, "now": nowString()})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("user", o.CreatedBy)
	}
	*o = opportunityFromMap(getMapFromRecord(records[0], "opportunity"))
	return nil
}

// UpdateOpportunity overwrites the editable fields of a posting
func (r *Repository) UpdateOpportunity(ctx context.Context, o *Opportunity) error {
	records, err := r.write(ctx, "update_opportunity", `
		MATCH (o:Opportunity {uid: $uid})
		SET o += $props, o.updated_at = datetime($now)
		RETURN o {.*} AS opportunity
	`, map[string]interface{}{"uid": o.UID, "props": o.props(), "now": nowString()})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("opportunity", o.UID)
	}
	*o = opportunityFromMap(getMapFromRecord(records[0], "opportunity"))
	return nil
}

// SetOpportunityStatus opens or closes a posting
func (r *Repository) SetOpportunityStatus(ctx context.Context, uid, status string) error {
	records, err := r.write(ctx, "set_opportunity_status", `
		MATCH (o:Opportunity {uid: $uid})
		SET o.status = $status, o.updated_at = datetime($now)
		RETURN o.uid AS uid
	`, map[string]interface{}{"uid": uid, "status": status, "now": nowString()})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("opportunity", uid)
	}
	return nil
}

// GetOpportunity returns a posting by uid
func (r *Repository) GetOpportunity(ctx context.Context, uid string) (*Opportunity, error) {
	records, err := r.read(ctx, "get_opportunity", `
		MATCH (o:Opportunity {uid: $uid}) RETURN o {.*} AS opportunity
	`, map[string]interface{}{"uid": uid})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("opportunity", uid)
	}
	o := opportunityFromMap(getMapFromRecord(records[0], "opportunity"))
	return &o, nil
}

// DeleteOpportunity removes a posting with its applications
func (r *Repository) DeleteOpportunity(ctx context.Context, uid string) error {
	params := map[string]interface{}{"uid": uid}
	return r.inWriteTx(ctx, "delete_opportunity", func(tx neo4j.ManagedTransaction) error {
		records, err := txCollect(ctx, tx, `MATCH (o:Opportunity {uid: $uid}) RETURN o.uid AS uid`, params)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return apperrors.NewNotFound("opportunity", uid)
		}
		if err := txExec(ctx, tx, `MATCH (a:Application)-[:FOR]->(:Opportunity {uid: $uid}) DETACH DELETE a`, params); err != nil {
			return err
		}
		return txExec(ctx, tx, `MATCH (o:Opportunity {uid: $uid}) DETACH DELETE o`, params)
	})
}

// ListOpportunitiesByUser returns a user's postings, newest first
func (r *Repository) ListOpportunitiesByUser(ctx context.Context, userUID string) ([]Opportunity, error) {
	records, err := r.read(ctx, "list_opportunities_by_user", `
		MATCH (:User {uid: $uid})-[:POSTED]->(o:Opportunity)
		RETURN o {.*} AS opportunity
		ORDER BY o.created_at DESC
	`, map[string]interface{}{"uid": userUID})
	if err != nil {
		return nil, err
	}
	return opportunities(records), nil
}

// OpportunityFeed returns open postings matching the filter, newest first
func (r *Repository) OpportunityFeed(ctx context.Context, filter OpportunityFilter) ([]Opportunity, error) {
	where, params := buildOpportunityFilter(filter)
	records, err := r.read(ctx, "opportunity_feed", `
		MATCH (o:Opportunity)
		WHERE `+where+`
		RETURN o {.*} AS opportunity
		ORDER BY o.created_at DESC
		SKIP $skip LIMIT $limit
	`, params)
	if err != nil {
		return nil, err
	}
	return opportunities(records), nil
}

// buildOpportunityFilter turns a feed filter into a WHERE clause and its
// parameters. Only parameter placeholders are interpolated.
func buildOpportunityFilter(f OpportunityFilter) (string, map[string]interface{}) {
	clauses := []string{"o.status = 'open'"}
	params := map[string]interface{}{
		"skip":  f.Skip,
		"limit": f.Limit,
	}
	if f.ViewerUID != "" {
		clauses = append(clauses, "o.created_by <> $viewer")
		params["viewer"] = f.ViewerUID
	}
	if f.JobType != "" {
		clauses = append(clauses, "o.job_type = $jobType")
		params["jobType"] = f.JobType
	}
	if f.Location != "" {
		clauses = append(clauses, "toLower(o.location) CONTAINS $location")
		params["location"] = strings.ToLower(f.Location)
	}
	if f.Remote != nil {
		clauses = append(clauses, "o.is_remote = $remote")
		params["remote"] = *f.Remote
	}
	if f.Skill != "" {
		clauses = append(clauses, "any(s IN o.skills WHERE toLower(s) = $skill)")
		params["skill"] = strings.ToLower(f.Skill)
	}
	if f.ExperienceLevel != "" {
		clauses = append(clauses, "o.experience_level = $experienceLevel")
		params["experienceLevel"] = f.ExperienceLevel
	}
	if f.Text != "" {
		clauses = append(clauses, "(toLower(o.role) CONTAINS $text OR toLower(o.description) CONTAINS $text)")
		params["text"] = strings.ToLower(f.Text)
	}
	return strings.Join(clauses, " AND "), params
}

// ----------------------------------------------------------------------------
// Applications
// ----------------------------------------------------------------------------

// CreateApplication records an application; returns a conflict when the user
// already applied.
func (r *Repository) CreateApplication(ctx context.Context, a *Application) error {
	records, err := r.write(ctx, "create_application", `
		MATCH (u:User {uid: $applicant}), (o:Opportunity {uid: $opportunity})
		OPTIONAL MATCH (u)-[:APPLIED]->(existing:Application)-[:FOR]->(o)
		WITH u, o, existing
		FOREACH (_ IN CASE WHEN existing IS NULL THEN [1] ELSE [] END |
			CREATE (u)-[:APPLIED]->(:Application {
				uid: $uid,
				opportunity_uid: $opportunity,
				applicant_uid: $applicant,
				note: $note,
				applied_at: datetime($now)
			})-[:FOR]->(o))
		RETURN existing IS NULL AS created
	`, map[string]interface{}{
		"uid":         a.UID,
		"applicant":   a.ApplicantUID,
		"opportunity": a.OpportunityUID,
		"note":        a.Note,
		"now":         nowString(),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("opportunity", a.OpportunityUID)
	}
	if !getBoolFromRecord(records[0], "created") {
		return apperrors.Conflict("already applied to this opportunity")
	}
	return nil
}

// HasApplied reports whether the user applied to the opportunity
func (r *Repository) HasApplied(ctx context.Context, opportunityUID, userUID string) (bool, error) {
	records, err := r.read(ctx, "has_applied", `
		MATCH (:User {uid: $user})-[:APPLIED]->(a:Application)-[:FOR]->(:Opportunity {uid: $opportunity})
		RETURN count(a) > 0 AS applied
	`, map[string]interface{}{"user": userUID, "opportunity": opportunityUID})
	if err != nil {
		return false, err
	}
	return len(records) > 0 && getBoolFromRecord(records[0], "applied"), nil
}

// ListApplications returns applicants of an opportunity, newest first
func (r *Repository) ListApplications(ctx context.Context, opportunityUID string) ([]Application, error) {
	records, err := r.read(ctx, "list_applications", `
		MATCH (u:User)-[:APPLIED]->(a:Application)-[:FOR]->(:Opportunity {uid: $opportunity})
		MATCH (u)-[:HAS_PROFILE]->(p:Profile)
		RETURN a {.*} AS application, `+summaryProjection("u", "p")+` AS applicant
		ORDER BY a.applied_at DESC
	`, map[string]interface{}{"opportunity": opportunityUID})
	if err != nil {
		return nil, err
	}
	apps := make([]Application, 0, len(records))
	for _, record := range records {
		m := getMapFromRecord(record, "application")
		apps = append(apps, Application{
			UID:            getStringFromMap(m, "uid", ""),
			OpportunityUID: getStringFromMap(m, "opportunity_uid", ""),
			ApplicantUID:   getStringFromMap(m, "applicant_uid", ""),
			Applicant:      userSummaryFromMap(getMapFromRecord(record, "applicant")),
			Note:           getStringFromMap(m, "note", ""),
			AppliedAt:      getTimeFromMap(m, "applied_at"),
		})
	}
	return apps, nil
}

func (o *Opportunity) props() map[string]interface{} {
	return map[string]interface{}{
		"role":             o.Role,
		"job_type":         o.JobType,
		"location":         o.Location,
		"is_remote":        o.IsRemote,
		"experience_level": o.ExperienceLevel,
		"salary_min":       o.SalaryMin,
		"salary_max":       o.SalaryMax,
		"currency":         o.Currency,
		"description":      o.Description,
		"skills":           nonNilStrings(o.Skills),
		"cta_link":         o.CTALink,
	}
}

func opportunities(records []*neo4j.Record) []Opportunity {
	result := make([]Opportunity, 0, len(records))
	for _, record := range records {
		result = append(result, opportunityFromMap(getMapFromRecord(record, "opportunity")))
	}
	return result
}

func opportunityFromMap(m map[string]interface{}) Opportunity {
	return Opportunity{
		UID:             getStringFromMap(m, "uid", ""),
		Role:            getStringFromMap(m, "role", ""),
		JobType:         getStringFromMap(m, "job_type", ""),
		Location:        getStringFromMap(m, "location", ""),
		IsRemote:        getBoolFromMap(m, "is_remote"),
		ExperienceLevel: getStringFromMap(m, "experience_level", ""),
		SalaryMin:       getFloat64FromMap(m, "salary_min", 0),
		SalaryMax:       getFloat64FromMap(m, "salary_max", 0),
		Currency:        getStringFromMap(m, "currency", ""),
		Description:     getStringFromMap(m, "description", ""),
		Skills:          getStringSliceFromMap(m, "skills"),
		CTALink:         getStringFromMap(m, "cta_link", ""),
		Status:          getStringFromMap(m, "status", ""),
		CreatedBy:       getStringFromMap(m, "created_by", ""),
		CreatedAt:       getTimeFromMap(m, "created_at"),
		UpdatedAt:       getTimeFromMap(m, "updated_at"),
	}
}
