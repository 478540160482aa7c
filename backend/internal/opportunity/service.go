package opportunity

import (
	"context"
	"net/url"
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

// Graph is the subset of the graph repository used for job postings
type Graph interface {
	CreateOpportunity(ctx context.Context, o *graph.Opportunity) error
	UpdateOpportunity(ctx context.Context, o *graph.Opportunity) error
	SetOpportunityStatus(ctx context.Context, uid, status string) error
	GetOpportunity(ctx context.Context, uid string) (*graph.Opportunity, error)
	DeleteOpportunity(ctx context.Context, uid string) error
	ListOpportunitiesByUser(ctx context.Context, userUID string) ([]graph.Opportunity, error)
	OpportunityFeed(ctx context.Context, filter graph.OpportunityFilter) ([]graph.Opportunity, error)
	CreateApplication(ctx context.Context, a *graph.Application) error
	HasApplied(ctx context.Context, opportunityUID, userUID string) (bool, error)
	ListApplications(ctx context.Context, opportunityUID string) ([]graph.Application, error)
}

// Job types
const (
	JobFullTime   = "full_time"
	JobPartTime   = "part_time"
	JobContract   = "contract"
	JobInternship = "internship"
	JobFreelance  = "freelance"
)

var (
	jobTypes         = map[string]bool{JobFullTime: true, JobPartTime: true, JobContract: true, JobInternship: true, JobFreelance: true}
	experienceLevels = map[string]bool{"entry": true, "mid": true, "senior": true, "lead": true}
)

const (
	// FeedTTL bounds how stale a cached feed page can be
	FeedTTL = 60 * time.Second

	feedNamespace    = "opportunity"
	defaultFeedLimit = 20
	maxFeedLimit     = 100
	maxRoleLength    = 200
	maxDescription   = 5000
	maxNoteLength    = 2000
	maxSkills        = 30
	defaultCurrency  = "USD"
)

// Input is the editable part of a posting
type Input struct {
	Role            string   `json:"role"`
	JobType         string   `json:"job_type"`
	Location        string   `json:"location"`
	IsRemote        bool     `json:"is_remote"`
	ExperienceLevel string   `json:"experience_level"`
	SalaryMin       float64  `json:"salary_min"`
	SalaryMax       float64  `json:"salary_max"`
	Currency        string   `json:"currency"`
	Description     string   `json:"description"`
	Skills          []string `json:"skills"`
	CTALink         string   `json:"cta_link"`
}

// Detail is a posting as seen by one viewer
type Detail struct {
	graph.Opportunity
	IsOwner    bool `json:"is_owner"`
	HasApplied bool `json:"has_applied"`
}

// Service implements job postings and applications
type Service struct {
	graph  Graph
	feed   *cache.Feed[graph.Opportunity]
	logger *zap.Logger
}

// NewService creates an opportunity service. A nil cache disables feed
// caching.
func NewService(g Graph, c *cache.Client) *Service {
	return &Service{
		graph:  g,
		feed:   cache.NewFeed[graph.Opportunity](c, feedNamespace, FeedTTL),
		logger: logger.Named("opportunity"),
	}
}

// Create stores an open posting owned by ownerUID
func (s *Service) Create(ctx context.Context, ownerUID string, in Input) (*graph.Opportunity, error) {
	o := &graph.Opportunity{
		UID:       uuid.NewString(),
		Status:    graph.OpportunityOpen,
		CreatedBy: ownerUID,
	}
	if err := apply(o, in); err != nil {
		return nil, err
	}
	if err := s.graph.CreateOpportunity(ctx, o); err != nil {
		return nil, err
	}
	s.feed.Invalidate(ctx)
	s.logger.Info("Created opportunity", zap.String("opportunity_uid", o.UID), zap.String("owner_uid", ownerUID))
	return o, nil
}

// Update replaces the editable fields of the owner's posting
func (s *Service) Update(ctx context.Context, ownerUID, uid string, in Input) (*graph.Opportunity, error) {
	o, err := s.owned(ctx, ownerUID, uid)
	if err != nil {
		return nil, err
	}
	if err := apply(o, in); err != nil {
		return nil, err
	}
	if err := s.graph.UpdateOpportunity(ctx, o); err != nil {
		return nil, err
	}
	s.feed.Invalidate(ctx)
	return o, nil
}

// Close stops a posting from accepting applications
func (s *Service) Close(ctx context.Context, ownerUID, uid string) error {
	o, err := s.owned(ctx, ownerUID, uid)
	if err != nil {
		return err
	}
	if o.Status == graph.OpportunityClosed {
		return nil
	}
	if err := s.graph.SetOpportunityStatus(ctx, uid, graph.OpportunityClosed); err != nil {
		return err
	}
	s.feed.Invalidate(ctx)
	return nil
}

// Delete removes the owner's posting and its applications
func (s *Service) Delete(ctx context.Context, ownerUID, uid string) error {
	if _, err := s.owned(ctx, ownerUID, uid); err != nil {
		return err
	}
	if err := s.graph.DeleteOpportunity(ctx, uid); err != nil {
		return err
	}
	s.feed.Invalidate(ctx)
	return nil
}

// Get returns a posting with the viewer's relation to it
func (s *Service) Get(ctx context.Context, viewerUID, uid string) (*Detail, error) {
	o, err := s.graph.GetOpportunity(ctx, uid)
	if err != nil {
		return nil, err
	}
	d := &Detail{Opportunity: *o, IsOwner: o.CreatedBy == viewerUID}
	if !d.IsOwner {
		if d.HasApplied, err = s.graph.HasApplied(ctx, uid, viewerUID); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ListMine returns the caller's postings in every status
func (s *Service) ListMine(ctx context.Context, ownerUID string) ([]graph.Opportunity, error) {
	return s.graph.ListOpportunitiesByUser(ctx, ownerUID)
}

// Feed returns open postings by others, newest first. Pages are cached per
// filter for FeedTTL.
func (s *Service) Feed(ctx context.Context, viewerUID string, filter graph.OpportunityFilter) ([]graph.Opportunity, error) {
	if filter.JobType != "" && !jobTypes[filter.JobType] {
		return nil, apperrors.Validation("unknown job type %q", filter.JobType)
	}
	if filter.ExperienceLevel != "" && !experienceLevels[filter.ExperienceLevel] {
		return nil, apperrors.Validation("unknown experience level %q", filter.ExperienceLevel)
	}
	filter.ViewerUID = viewerUID
	filter.Location = strings.TrimSpace(filter.Location)
	filter.Skill = strings.TrimSpace(filter.Skill)
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

	return s.feed.Get(ctx, filter, func(ctx context.Context) ([]graph.Opportunity, error) {
		return s.graph.OpportunityFeed(ctx, filter)
	})
}

// Apply records the user's application to an open posting by someone else
func (s *Service) Apply(ctx context.Context, userUID, uid, note string) (*graph.Application, error) {
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > maxNoteLength {
		return nil, apperrors.Validation("note must be at most %d characters", maxNoteLength)
	}
	o, err := s.graph.GetOpportunity(ctx, uid)
	if err != nil {
		return nil, err
	}
	if o.CreatedBy == userUID {
		return nil, apperrors.Validation("cannot apply to your own opportunity")
	}
	if o.Status != graph.OpportunityOpen {
		return nil, apperrors.Conflict("opportunity is closed")
	}

	a := &graph.Application{
		UID:            uuid.NewString(),
		OpportunityUID: uid,
		ApplicantUID:   userUID,
		Note:           note,
		AppliedAt:      time.Now().UTC(),
	}
	if err := s.graph.CreateApplication(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListApplicants returns applications to the owner's posting
func (s *Service) ListApplicants(ctx context.Context, ownerUID, uid string) ([]graph.Application, error) {
	if _, err := s.owned(ctx, ownerUID, uid); err != nil {
		return nil, err
	}
	return s.graph.ListApplications(ctx, uid)
}

func (s *Service) owned(ctx context.Context, ownerUID, uid string) (*graph.Opportunity, error) {
	o, err := s.graph.GetOpportunity(ctx, uid)
	if err != nil {
		return nil, err
	}
	if o.CreatedBy != ownerUID {
		return nil, apperrors.Forbidden("only the poster can change this opportunity")
	}
	return o, nil
}

// apply validates in and copies it onto o
func apply(o *graph.Opportunity, in Input) error {
	role := strings.TrimSpace(in.Role)
	if role == "" {
		return apperrors.Validation("role is required")
	}
	if utf8.RuneCountInString(role) > maxRoleLength {
		return apperrors.Validation("role must be at most %d characters", maxRoleLength)
	}
	if !jobTypes[in.JobType] {
		return apperrors.Validation("job type must be one of full_time, part_time, contract, internship, freelance")
	}
	if in.ExperienceLevel != "" && !experienceLevels[in.ExperienceLevel] {
		return apperrors.Validation("experience level must be one of entry, mid, senior, lead")
	}
	if in.SalaryMin < 0 || in.SalaryMax < 0 {
		return apperrors.Validation("salary cannot be negative")
	}
	if in.SalaryMax > 0 && in.SalaryMin > in.SalaryMax {
		return apperrors.Validation("salary_min cannot exceed salary_max")
	}
	if utf8.RuneCountInString(in.Description) > maxDescription {
		return apperrors.Validation("description must be at most %d characters", maxDescription)
	}
	currency, err := normalizeCurrency(in.Currency)
	if err != nil {
		return err
	}
	skills := cleanList(in.Skills)
	if len(skills) > maxSkills {
		return apperrors.Validation("at most %d skills are allowed", maxSkills)
	}
	link := strings.TrimSpace(in.CTALink)
	if link != "" && !isHTTPURL(link) {
		return apperrors.Validation("cta_link must be an http or https URL")
	}

	o.Role = role
	o.JobType = in.JobType
	o.Location = strings.TrimSpace(in.Location)
	o.IsRemote = in.IsRemote
	o.ExperienceLevel = in.ExperienceLevel
	o.SalaryMin = in.SalaryMin
	o.SalaryMax = in.SalaryMax
	o.Currency = currency
	o.Description = strings.TrimSpace(in.Description)
	o.Skills = skills
	o.CTALink = link
	return nil
}

func normalizeCurrency(raw string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if c == "" {
		return defaultCurrency, nil
	}
	if len(c) != 3 {
		return "", apperrors.Validation("currency must be a three-letter code")
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", apperrors.Validation("currency must be a three-letter code")
		}
	}
	return c, nil
}

// cleanList trims entries and drops blanks and case-insensitive duplicates
func cleanList(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		k := strings.ToLower(v)
		if v == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
