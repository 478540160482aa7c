package graph

import (
	"context"
	"fmt"

	apperrors "circlenet/backend/pkg/errors"
)

// ============================================================================
// Profile Operations
// ============================================================================

type itemSchema struct {
	label string
	rel   string
}

// Labels and relationship types are interpolated into Cypher, so only these
// fixed values are ever used.
var profileItemSchemas = map[ProfileItemKind]itemSchema{
	KindEducation:   {label: "Education", rel: "HAS_EDUCATION"},
	KindExperience:  {label: "Experience", rel: "HAS_EXPERIENCE"},
	KindAchievement: {label: "Achievement", rel: "HAS_ACHIEVEMENT"},
	KindSkill:       {label: "Skill", rel: "HAS_SKILL"},
}

// GetProfile returns the profile of a user
func (r *Repository) GetProfile(ctx context.Context, userUID string) (*Profile, error) {
	records, err := r.read(ctx, "get_profile", `
		MATCH (:User {uid: $uid})-[:HAS_PROFILE]->(p:Profile)
		RETURN p {.*} AS profile
	`, map[string]interface{}{"uid": userUID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("profile", userUID)
	}
	return profileFromMap(getMapFromRecord(records[0], "profile")), nil
}

// UpdateProfile applies the non-nil fields of update
func (r *Repository) UpdateProfile(ctx context.Context, userUID string, update ProfileUpdate) (*Profile, error) {
	records, err := r.write(ctx, "update_profile", `
		MATCH (:User {uid: $uid})-[:HAS_PROFILE]->(p:Profile)
		SET p += $props, p.updated_at = datetime($now)
		RETURN p {.*} AS profile
	`, map[string]interface{}{
		"uid":   userUID,
		"props": update.props(),
		"now":   nowString(),
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("profile", userUID)
	}
	return profileFromMap(getMapFromRecord(records[0], "profile")), nil
}

func (u ProfileUpdate) props() map[string]interface{} {
	props := map[string]interface{}{}
	set := func(key string, v *string) {
		if v != nil {
			props[key] = *v
		}
	}
	set("bio", u.Bio)
	set("designation", u.Designation)
	set("location", u.Location)
	set("phone", u.Phone)
	set("gender", u.Gender)
	set("date_of_birth", u.DateOfBirth)
	set("profile_pic_key", u.ProfilePicKey)
	set("cover_pic_key", u.CoverPicKey)
	if u.Interests != nil {
		props["interests"] = nonNilStrings(*u.Interests)
	}
	return props
}

func profileFromMap(m map[string]interface{}) *Profile {
	p := &Profile{
		UID:           getStringFromMap(m, "uid", ""),
		UserUID:       getStringFromMap(m, "user_uid", ""),
		Bio:           getStringFromMap(m, "bio", ""),
		Designation:   getStringFromMap(m, "designation", ""),
		Location:      getStringFromMap(m, "location", ""),
		Phone:         getStringFromMap(m, "phone", ""),
		Gender:        getStringFromMap(m, "gender", ""),
		DateOfBirth:   getStringFromMap(m, "date_of_birth", ""),
		Interests:     getStringSliceFromMap(m, "interests"),
		ProfilePicKey: getStringFromMap(m, "profile_pic_key", ""),
		CoverPicKey:   getStringFromMap(m, "cover_pic_key", ""),
		VibeScore:     getFloat64FromMap(m, "vibe_score", 0),
		TopVibes:      []VibeAggregate{},
		UpdatedAt:     getTimeFromMap(m, "updated_at"),
	}
	decodeJSONFromMap(m, "top_vibes_json", &p.TopVibes)
	return p
}

// ----------------------------------------------------------------------------
// List-valued sections
// ----------------------------------------------------------------------------

func (r *Repository) createProfileItem(ctx context.Context, userUID string, kind ProfileItemKind, uid string, props map[string]interface{}) (map[string]interface{}, error) {
	schema := profileItemSchemas[kind]
	query := fmt.Sprintf(`
		MATCH (:User {uid: $userUID})-[:HAS_PROFILE]->(p:Profile)
		CREATE (p)-[:%s]->(i:%s {uid: $uid, created_at: datetime($now), updated_at: datetime($now)})
		SET i += $props
		RETURN i {.*} AS item
	`, schema.rel, schema.label)

	records, err := r.write(ctx, "create_"+string(kind), query, map[string]interface{}{
		"userUID": userUID,
		"uid":     uid,
		"props":   props,
		"now":     nowString(),
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("profile", userUID)
	}
	return getMapFromRecord(records[0], "item"), nil
}

func (r *Repository) updateProfileItem(ctx context.Context, userUID string, kind ProfileItemKind, uid string, props map[string]interface{}) (map[string]interface{}, error) {
	schema := profileItemSchemas[kind]
	query := fmt.Sprintf(`
		MATCH (:User {uid: $userUID})-[:HAS_PROFILE]->(:Profile)-[:%s]->(i:%s {uid: $uid})
		SET i += $props, i.updated_at = datetime($now)
		RETURN i {.*} AS item
	`, schema.rel, schema.label)

	records, err := r.write(ctx, "update_"+string(kind), query, map[string]interface{}{
		"userUID": userUID,
		"uid":     uid,
		"props":   props,
		"now":     nowString(),
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound(string(kind), uid)
	}
	return getMapFromRecord(records[0], "item"), nil
}

func (r *Repository) listProfileItems(ctx context.Context, userUID string, kind ProfileItemKind, orderBy string) ([]map[string]interface{}, error) {
	schema := profileItemSchemas[kind]
	query := fmt.Sprintf(`
		MATCH (:User {uid: $userUID})-[:HAS_PROFILE]->(:Profile)-[:%s]->(i:%s)
		RETURN i {.*} AS item
		ORDER BY %s
	`, schema.rel, schema.label, orderBy)

	records, err := r.read(ctx, "list_"+string(kind), query, map[string]interface{}{"userUID": userUID})
	if err != nil {
		return nil, err
	}
	items := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		items = append(items, getMapFromRecord(record, "item"))
	}
	return items, nil
}

// DeleteProfileItem removes one entry of the given kind owned by the user
func (r *Repository) DeleteProfileItem(ctx context.Context, userUID string, kind ProfileItemKind, uid string) error {
	schema, ok := profileItemSchemas[kind]
	if !ok {
		return apperrors.Validation("unknown profile section %q", kind)
	}
	query := fmt.Sprintf(`
		MATCH (:User {uid: $userUID})-[:HAS_PROFILE]->(:Profile)-[:%s]->(i:%s {uid: $uid})
		DETACH DELETE i
		RETURN count(*) AS deleted
	`, schema.rel, schema.label)

	records, err := r.write(ctx, "delete_"+string(kind), query, map[string]interface{}{
		"userUID": userUID,
		"uid":     uid,
	})
	if err != nil {
		return err
	}
	if len(records) == 0 || getIntFromRecord(records[0], "deleted") == 0 {
		return apperrors.NewNotFound(string(kind), uid)
	}
	return nil
}

// CreateEducation adds an education entry
func (r *Repository) CreateEducation(ctx context.Context, userUID string, e *Education) error {
	m, err := r.createProfileItem(ctx, userUID, KindEducation, e.UID, e.props())
	if err != nil {
		return err
	}
	*e = educationFromMap(m)
	return nil
}

// UpdateEducation replaces the fields of an education entry
func (r *Repository) UpdateEducation(ctx context.Context, userUID string, e *Education) error {
	m, err := r.updateProfileItem(ctx, userUID, KindEducation, e.UID, e.props())
	if err != nil {
		return err
	}
	*e = educationFromMap(m)
	return nil
}

// ListEducation returns education entries, most recent start first
func (r *Repository) ListEducation(ctx context.Context, userUID string) ([]Education, error) {
	items, err := r.listProfileItems(ctx, userUID, KindEducation, "i.start_date DESC, i.created_at DESC")
	if err != nil {
		return nil, err
	}
	result := make([]Education, 0, len(items))
	for _, m := range items {
		result = append(result, educationFromMap(m))
	}
	return result, nil
}

// CreateExperience adds a work history entry
func (r *Repository) CreateExperience(ctx context.Context, userUID string, e *Experience) error {
	m, err := r.createProfileItem(ctx, userUID, KindExperience, e.UID, e.props())
	if err != nil {
		return err
	}
	*e = experienceFromMap(m)
	return nil
}

// UpdateExperience replaces the fields of a work history entry
func (r *Repository) UpdateExperience(ctx context.Context, userUID string, e *Experience) error {
	m, err := r.updateProfileItem(ctx, userUID, KindExperience, e.UID, e.props())
	if err != nil {
		return err
	}
	*e = experienceFromMap(m)
	return nil
}

// ListExperience returns work history, current roles first
func (r *Repository) ListExperience(ctx context.Context, userUID string) ([]Experience, error) {
	items, err := r.listProfileItems(ctx, userUID, KindExperience, "i.is_current DESC, i.start_date DESC")
	if err != nil {
		return nil, err
	}
	result := make([]Experience, 0, len(items))
	for _, m := range items {
		result = append(result, experienceFromMap(m))
	}
	return result, nil
}

// CreateAchievement adds an achievement
func (r *Repository) CreateAchievement(ctx context.Context, userUID string, a *Achievement) error {
	m, err := r.createProfileItem(ctx, userUID, KindAchievement, a.UID, a.props())
	if err != nil {
		return err
	}
	*a = achievementFromMap(m)
	return nil
}

// UpdateAchievement replaces the fields of an achievement
func (r *Repository) UpdateAchievement(ctx context.Context, userUID string, a *Achievement) error {
	m, err := r.updateProfileItem(ctx, userUID, KindAchievement, a.UID, a.props())
	if err != nil {
		return err
	}
	*a = achievementFromMap(m)
	return nil
}

// ListAchievements returns achievements, newest first
func (r *Repository) ListAchievements(ctx context.Context, userUID string) ([]Achievement, error) {
	items, err := r.listProfileItems(ctx, userUID, KindAchievement, "i.date DESC, i.created_at DESC")
	if err != nil {
		return nil, err
	}
	result := make([]Achievement, 0, len(items))
	for _, m := range items {
		result = append(result, achievementFromMap(m))
	}
	return result, nil
}

// CreateSkill adds a skill. Case-insensitive uniqueness is checked by callers.
func (r *Repository) CreateSkill(ctx context.Context, userUID string, s *Skill) error {
	m, err := r.createProfileItem(ctx, userUID, KindSkill, s.UID, map[string]interface{}{"name": s.Name})
	if err != nil {
		return err
	}
	*s = Skill{
		UID:       getStringFromMap(m, "uid", ""),
		Name:      getStringFromMap(m, "name", ""),
		CreatedAt: getTimeFromMap(m, "created_at"),
	}
	return nil
}

// ListSkills returns skills alphabetically
func (r *Repository) ListSkills(ctx context.Context, userUID string) ([]Skill, error) {
	items, err := r.listProfileItems(ctx, userUID, KindSkill, "toLower(i.name)")
	if err != nil {
		return nil, err
	}
	result := make([]Skill, 0, len(items))
	for _, m := range items {
		result = append(result, Skill{
			UID:       getStringFromMap(m, "uid", ""),
			Name:      getStringFromMap(m, "name", ""),
			CreatedAt: getTimeFromMap(m, "created_at"),
		})
	}
	return result, nil
}

func (e *Education) props() map[string]interface{} {
	return map[string]interface{}{
		"school":         e.School,
		"degree":         e.Degree,
		"field_of_study": e.FieldOfStudy,
		"start_date":     e.StartDate,
		"end_date":       e.EndDate,
		"description":    e.Description,
	}
}

func educationFromMap(m map[string]interface{}) Education {
	return Education{
		UID:          getStringFromMap(m, "uid", ""),
		School:       getStringFromMap(m, "school", ""),
		Degree:       getStringFromMap(m, "degree", ""),
		FieldOfStudy: getStringFromMap(m, "field_of_study", ""),
		StartDate:    getStringFromMap(m, "start_date", ""),
		EndDate:      getStringFromMap(m, "end_date", ""),
		Description:  getStringFromMap(m, "description", ""),
		CreatedAt:    getTimeFromMap(m, "created_at"),
		UpdatedAt:    getTimeFromMap(m, "updated_at"),
	}
}

func (e *Experience) props() map[string]interface{} {
	return map[string]interface{}{
		"company":         e.Company,
		"title":           e.Title,
		"employment_type": e.EmploymentType,
		"location":        e.Location,
		"start_date":      e.StartDate,
		"end_date":        e.EndDate,
		"is_current":      e.IsCurrent,
		"description":     e.Description,
	}
}

func experienceFromMap(m map[string]interface{}) Experience {
	return Experience{
		UID:            getStringFromMap(m, "uid", ""),
		Company:        getStringFromMap(m, "company", ""),
		Title:          getStringFromMap(m, "title", ""),
		EmploymentType: getStringFromMap(m, "employment_type", ""),
		Location:       getStringFromMap(m, "location", ""),
		StartDate:      getStringFromMap(m, "start_date", ""),
		EndDate:        getStringFromMap(m, "end_date", ""),
		IsCurrent:      getBoolFromMap(m, "is_current"),
		Description:    getStringFromMap(m, "description", ""),
		CreatedAt:      getTimeFromMap(m, "created_at"),
		UpdatedAt:      getTimeFromMap(m, "updated_at"),
	}
}

func (a *Achievement) props() map[string]interface{} {
	return map[string]interface{}{
		"title":       a.Title,
		"issuer":      a.Issuer,
		"description": a.Description,
		"date":        a.Date,
		"url":         a.URL,
	}
}

func achievementFromMap(m map[string]interface{}) Achievement {
	return Achievement{
		UID:         getStringFromMap(m, "uid", ""),
		Title:       getStringFromMap(m, "title", ""),
		Issuer:      getStringFromMap(m, "issuer", ""),
		Description: getStringFromMap(m, "description", ""),
		Date:        getStringFromMap(m, "date", ""),
		URL:         getStringFromMap(m, "url", ""),
		CreatedAt:   getTimeFromMap(m, "created_at"),
		UpdatedAt:   getTimeFromMap(m, "updated_at"),
	}
}
