package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/storage"
	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Graph is the subset of the graph repository used for profiles
type Graph interface {
	GetUser(ctx context.Context, uid string) (*graph.User, error)
	GetProfile(ctx context.Context, userUID string) (*graph.Profile, error)
	UpdateProfile(ctx context.Context, userUID string, update graph.ProfileUpdate) (*graph.Profile, error)
	SearchUsers(ctx context.Context, viewerUID, term string, limit int) ([]graph.UserSummary, error)

	CreateEducation(ctx context.Context, userUID string, e *graph.Education) error
	UpdateEducation(ctx context.Context, userUID string, e *graph.Education) error
	ListEducation(ctx context.Context, userUID string) ([]graph.Education, error)
	CreateExperience(ctx context.Context, userUID string, e *graph.Experience) error
	UpdateExperience(ctx context.Context, userUID string, e *graph.Experience) error
	ListExperience(ctx context.Context, userUID string) ([]graph.Experience, error)
	CreateAchievement(ctx context.Context, userUID string, a *graph.Achievement) error
	UpdateAchievement(ctx context.Context, userUID string, a *graph.Achievement) error
	ListAchievements(ctx context.Context, userUID string) ([]graph.Achievement, error)
	CreateSkill(ctx context.Context, userUID string, s *graph.Skill) error
	ListSkills(ctx context.Context, userUID string) ([]graph.Skill, error)
	DeleteProfileItem(ctx context.Context, userUID string, kind graph.ProfileItemKind, uid string) error

	RecordVibe(ctx context.Context, reaction graph.VibeReaction) (float64, []graph.VibeAggregate, error)
}

// Presigner issues object storage URLs
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string) (*storage.PresignedURL, error)
	PresignGet(ctx context.Context, key string) (*storage.PresignedURL, error)
}

// FullProfile is a user with every profile section
type FullProfile struct {
	User         *graph.User         `json:"user"`
	Profile      *graph.Profile      `json:"profile"`
	Education    []graph.Education   `json:"education"`
	Experience   []graph.Experience  `json:"experience"`
	Achievements []graph.Achievement `json:"achievements"`
	Skills       []graph.Skill       `json:"skills"`
}

// VibeSummary is the stored vibe aggregate of a user
type VibeSummary struct {
	UserUID   string                `json:"user_uid"`
	VibeScore float64               `json:"vibe_score"`
	TopVibes  []graph.VibeAggregate `json:"top_vibes"`
}

// Image kinds accepted for uploads
const (
	ImageAvatar = "avatar"
	ImageCover  = "cover"
)

var imageContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

const (
	maxSkillLength     = 50
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

// Service implements profile editing, search, uploads and vibes
type Service struct {
	graph   Graph
	presign Presigner
	logger  *zap.Logger
}

// NewService creates a profile service
func NewService(g Graph, presign Presigner) *Service {
	return &Service{graph: g, presign: presign, logger: logger.Named("profile")}
}

// GetProfile fetches the user, the profile and its four sections in parallel
func (s *Service) GetProfile(ctx context.Context, userUID string) (*FullProfile, error) {
	full := &FullProfile{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		full.User, err = s.graph.GetUser(gctx, userUID)
		return err
	})
	g.Go(func() (err error) {
		full.Profile, err = s.graph.GetProfile(gctx, userUID)
		return err
	})
	g.Go(func() (err error) {
		full.Education, err = s.graph.ListEducation(gctx, userUID)
		return err
	})
	g.Go(func() (err error) {
		full.Experience, err = s.graph.ListExperience(gctx, userUID)
		return err
	})
	g.Go(func() (err error) {
		full.Achievements, err = s.graph.ListAchievements(gctx, userUID)
		return err
	})
	g.Go(func() (err error) {
		full.Skills, err = s.graph.ListSkills(gctx, userUID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return full, nil
}

// UpdateProfile applies a partial update. Image keys must point at the
// user's own upload prefix.
func (s *Service) UpdateProfile(ctx context.Context, userUID string, update graph.ProfileUpdate) (*graph.Profile, error) {
	for _, key := range []*string{update.ProfilePicKey, update.CoverPicKey} {
		if key != nil && *key != "" && !strings.HasPrefix(*key, userPrefix(userUID)) {
			return nil, apperrors.Validation("image key must be an upload of your own")
		}
	}
	if update.DateOfBirth != nil && *update.DateOfBirth != "" {
		if _, err := parseDate(*update.DateOfBirth); err != nil {
			return nil, err
		}
	}
	if update.Interests != nil {
		cleaned := dedupeFold(*update.Interests)
		update.Interests = &cleaned
	}
	return s.graph.UpdateProfile(ctx, userUID, update)
}

// ----------------------------------------------------------------------------
// Sections
// ----------------------------------------------------------------------------

// AddEducation adds an education entry
func (s *Service) AddEducation(ctx context.Context, userUID string, e *graph.Education) error {
	if strings.TrimSpace(e.School) == "" {
		return apperrors.Validation("school is required")
	}
	if err := validateRange(e.StartDate, e.EndDate); err != nil {
		return err
	}
	e.UID = uuid.NewString()
	return s.graph.CreateEducation(ctx, userUID, e)
}

// UpdateEducation replaces an education entry
func (s *Service) UpdateEducation(ctx context.Context, userUID string, e *graph.Education) error {
	if e.UID == "" {
		return apperrors.Validation("uid is required")
	}
	if strings.TrimSpace(e.School) == "" {
		return apperrors.Validation("school is required")
	}
	if err := validateRange(e.StartDate, e.EndDate); err != nil {
		return err
	}
	return s.graph.UpdateEducation(ctx, userUID, e)
}

// ListEducation lists education entries
func (s *Service) ListEducation(ctx context.Context, userUID string) ([]graph.Education, error) {
	return s.graph.ListEducation(ctx, userUID)
}

// AddExperience adds a work history entry
func (s *Service) AddExperience(ctx context.Context, userUID string, e *graph.Experience) error {
	if err := validateExperience(e); err != nil {
		return err
	}
	e.UID = uuid.NewString()
	return s.graph.CreateExperience(ctx, userUID, e)
}

// UpdateExperience replaces a work history entry
func (s *Service) UpdateExperience(ctx context.Context, userUID string, e *graph.Experience) error {
	if e.UID == "" {
		return apperrors.Validation("uid is required")
	}
	if err := validateExperience(e); err != nil {
		return err
	}
	return s.graph.UpdateExperience(ctx, userUID, e)
}

func validateExperience(e *graph.Experience) error {
	if strings.TrimSpace(e.Company) == "" || strings.TrimSpace(e.Title) == "" {
		return apperrors.Validation("company and title are required")
	}
	if e.IsCurrent {
		e.EndDate = ""
	}
	return validateRange(e.StartDate, e.EndDate)
}

// ListExperience lists work history entries
func (s *Service) ListExperience(ctx context.Context, userUID string) ([]graph.Experience, error) {
	return s.graph.ListExperience(ctx, userUID)
}

// AddAchievement adds an achievement
func (s *Service) AddAchievement(ctx context.Context, userUID string, a *graph.Achievement) error {
	if strings.TrimSpace(a.Title) == "" {
		return apperrors.Validation("title is required")
	}
	a.UID = uuid.NewString()
	return s.graph.CreateAchievement(ctx, userUID, a)
}

// UpdateAchievement replaces an achievement
func (s *Service) UpdateAchievement(ctx context.Context, userUID string, a *graph.Achievement) error {
	if a.UID == "" || strings.TrimSpace(a.Title) == "" {
		return apperrors.Validation("uid and title are required")
	}
	return s.graph.UpdateAchievement(ctx, userUID, a)
}

// ListAchievements lists achievements
func (s *Service) ListAchievements(ctx context.Context, userUID string) ([]graph.Achievement, error) {
	return s.graph.ListAchievements(ctx, userUID)
}

// DeleteItem removes an education, experience, achievement or skill entry
func (s *Service) DeleteItem(ctx context.Context, userUID string, kind graph.ProfileItemKind, uid string) error {
	return s.graph.DeleteProfileItem(ctx, userUID, kind, uid)
}

// AddSkill adds a skill unless the profile already has it, ignoring case
func (s *Service) AddSkill(ctx context.Context, userUID, name string) (*graph.Skill, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || len(name) > maxSkillLength {
		return nil, apperrors.Validation("skill name must be 1-%d characters", maxSkillLength)
	}

	existing, err := s.graph.ListSkills(ctx, userUID)
	if err != nil {
		return nil, err
	}
	for _, sk := range existing {
		if strings.EqualFold(sk.Name, name) {
			return nil, apperrors.Conflict("skill %q already on profile", sk.Name)
		}
	}

	skill := &graph.Skill{UID: uuid.NewString(), Name: name}
	if err := s.graph.CreateSkill(ctx, userUID, skill); err != nil {
		return nil, err
	}
	return skill, nil
}

// ListSkills lists skills
func (s *Service) ListSkills(ctx context.Context, userUID string) ([]graph.Skill, error) {
	return s.graph.ListSkills(ctx, userUID)
}

// SearchUsers finds other users by name, username or designation
func (s *Service) SearchUsers(ctx context.Context, viewerUID, query string, limit int) ([]graph.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Validation("search query is required")
	}
	switch {
	case limit <= 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}
	return s.graph.SearchUsers(ctx, viewerUID, query, limit)
}

// ----------------------------------------------------------------------------
// Uploads
// ----------------------------------------------------------------------------

func userPrefix(userUID string) string {
	return "profiles/" + userUID + "/"
}

// ImageUploadURL returns a presigned PUT for a new avatar or cover image.
// The key is profiles/<uid>/<kind>/<uuid>.
func (s *Service) ImageUploadURL(ctx context.Context, userUID, kind, contentType string) (*storage.PresignedURL, error) {
	if kind != ImageAvatar && kind != ImageCover {
		return nil, apperrors.Validation("image kind must be %q or %q", ImageAvatar, ImageCover)
	}
	if !imageContentTypes[contentType] {
		return nil, apperrors.Validation("unsupported image type %q", contentType)
	}
	key := fmt.Sprintf("%s%s/%s", userPrefix(userUID), kind, uuid.NewString())
	return s.presign.PresignPut(ctx, key, contentType)
}

// FileURL returns a presigned GET for a profile upload
func (s *Service) FileURL(ctx context.Context, key string) (*storage.PresignedURL, error) {
	if !strings.HasPrefix(key, "profiles/") || strings.Contains(key, "..") {
		return nil, apperrors.Validation("invalid file key")
	}
	return s.presign.PresignGet(ctx, key)
}

// ----------------------------------------------------------------------------
// Vibes
// ----------------------------------------------------------------------------

// ReactWithVibe records a reaction and recomputes the target's aggregate
func (s *Service) ReactWithVibe(ctx context.Context, reactorUID, targetUID, vibe string, intensity int) (*VibeSummary, error) {
	if reactorUID == targetUID {
		return nil, apperrors.Validation("you cannot react to yourself")
	}
	name, ok := canonicalVibe(vibe)
	if !ok {
		return nil, apperrors.Validation("unknown vibe %q", vibe)
	}
	if intensity < MinIntensity || intensity > MaxIntensity {
		return nil, apperrors.Validation("intensity must be between %d and %d", MinIntensity, MaxIntensity)
	}
	if _, err := s.graph.GetUser(ctx, targetUID); err != nil {
		return nil, err
	}

	score, top, err := s.graph.RecordVibe(ctx, graph.VibeReaction{
		ReactorUID: reactorUID,
		TargetUID:  targetUID,
		Vibe:       name,
		Intensity:  intensity,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Vibe recorded",
		zap.String("user_id", reactorUID),
		zap.String("target_uid", targetUID),
		zap.String("vibe", name),
		zap.Float64("vibe_score", score),
	)
	return &VibeSummary{UserUID: targetUID, VibeScore: score, TopVibes: top}, nil
}

// ListVibes returns the stored aggregate of a user
func (s *Service) ListVibes(ctx context.Context, targetUID string) (*VibeSummary, error) {
	p, err := s.graph.GetProfile(ctx, targetUID)
	if err != nil {
		return nil, err
	}
	return &VibeSummary{UserUID: targetUID, VibeScore: p.VibeScore, TopVibes: p.TopVibes}, nil
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

var dateLayouts = []string{"2006-01-02", "2006-01", "2006"}

func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperrors.Validation("invalid date %q, use YYYY, YYYY-MM or YYYY-MM-DD", v)
}

func validateRange(start, end string) error {
	var from, to time.Time
	var err error
	if start != "" {
		if from, err = parseDate(start); err != nil {
			return err
		}
	}
	if end != "" {
		if to, err = parseDate(end); err != nil {
			return err
		}
	}
	if start != "" && end != "" && to.Before(from) {
		return apperrors.Validation("end date is before start date")
	}
	return nil
}

func dedupeFold(values []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
