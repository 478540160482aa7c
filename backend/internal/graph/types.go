package graph

import "time"

// ============================================================================
// Users and Profiles
// ============================================================================

// User is the graph twin of an account row; uid equals the account id
type User struct {
	UID       string    `json:"uid"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSummary is the compact user shape embedded in other responses
type UserSummary struct {
	UID           string `json:"uid"`
	Username      string `json:"username"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Designation   string `json:"designation,omitempty"`
	ProfilePicKey string `json:"profile_pic_key,omitempty"`
}

// Profile holds the editable part of a user
type Profile struct {
	UID           string          `json:"uid"`
	UserUID       string          `json:"user_uid"`
	Bio           string          `json:"bio"`
	Designation   string          `json:"designation"`
	Location      string          `json:"location"`
	Phone         string          `json:"phone"`
	Gender        string          `json:"gender"`
	DateOfBirth   string          `json:"date_of_birth"`
	Interests     []string        `json:"interests"`
	ProfilePicKey string          `json:"profile_pic_key"`
	CoverPicKey   string          `json:"cover_pic_key"`
	VibeScore     float64         `json:"vibe_score"`
	TopVibes      []VibeAggregate `json:"top_vibes"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ProfileUpdate is a partial update; nil fields are left untouched
type ProfileUpdate struct {
	Bio           *string   `json:"bio"`
	Designation   *string   `json:"designation"`
	Location      *string   `json:"location"`
	Phone         *string   `json:"phone"`
	Gender        *string   `json:"gender"`
	DateOfBirth   *string   `json:"date_of_birth"`
	Interests     *[]string `json:"interests"`
	ProfilePicKey *string   `json:"profile_pic_key"`
	CoverPicKey   *string   `json:"cover_pic_key"`
}

// ProfileItemKind names one of the list-valued profile sections
type ProfileItemKind string

const (
	KindEducation   ProfileItemKind = "education"
	KindExperience  ProfileItemKind = "experience"
	KindAchievement ProfileItemKind = "achievement"
	KindSkill       ProfileItemKind = "skill"
)

// Education is one education entry on a profile
type Education struct {
	UID          string    `json:"uid"`
	School       string    `json:"school"`
	Degree       string    `json:"degree"`
	FieldOfStudy string    `json:"field_of_study"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Experience is one work history entry on a profile
type Experience struct {
	UID            string    `json:"uid"`
	Company        string    `json:"company"`
	Title          string    `json:"title"`
	EmploymentType string    `json:"employment_type"`
	Location       string    `json:"location"`
	StartDate      string    `json:"start_date"`
	EndDate        string    `json:"end_date"`
	IsCurrent      bool      `json:"is_current"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Achievement is an award, certificate or similar entry
type Achievement struct {
	UID         string    `json:"uid"`
	Title       string    `json:"title"`
	Issuer      string    `json:"issuer"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Skill is a named skill; names are unique per profile ignoring case
type Skill struct {
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// VibeReaction is one user's reaction to another
type VibeReaction struct {
	ReactorUID string    `json:"reactor_uid"`
	TargetUID  string    `json:"target_uid"`
	Vibe       string    `json:"vibe"`
	Intensity  int       `json:"intensity"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// VibeAggregate summarises all reactions of one vibe on a user
type VibeAggregate struct {
	Vibe    string  `json:"vibe"`
	Count   int     `json:"count"`
	Total   int     `json:"total"`
	Average float64 `json:"average"`
}

// ============================================================================
// Connections
// ============================================================================

// ConnectionStatus is the lifecycle state of a connection request
type ConnectionStatus string

const (
	StatusReceived  ConnectionStatus = "Received"
	StatusAccepted  ConnectionStatus = "Accepted"
	StatusRejected  ConnectionStatus = "Rejected"
	StatusCancelled ConnectionStatus = "Cancelled"
)

// Connection links a sender and a receiver
type Connection struct {
	UID         string           `json:"uid"`
	SenderUID   string           `json:"sender_uid"`
	ReceiverUID string           `json:"receiver_uid"`
	Status      ConnectionStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Circle classifies a connection from both sides
type Circle struct {
	UID                 string `json:"uid"`
	CircleType          string `json:"circle_type"`
	Relation            string `json:"relation"`
	SenderSubRelation   string `json:"sender_sub_relation"`
	ReceiverSubRelation string `json:"receiver_sub_relation"`
}

// ConnectionView is a connection with its circle and both parties
type ConnectionView struct {
	Connection
	Circle   Circle      `json:"circle"`
	Sender   UserSummary `json:"sender"`
	Receiver UserSummary `json:"receiver"`
}

// Recommendation is a friend-of-friend suggestion
type Recommendation struct {
	User        UserSummary `json:"user"`
	MutualCount int         `json:"mutual_count"`
}

// ============================================================================
// Communities
// ============================================================================

const (
	CommunityPublic  = "public"
	CommunityPrivate = "private"

	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// Community is a group with a backing Matrix room
type Community struct {
	UID           string    `json:"uid"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	CommunityType string    `json:"community_type"`
	RoomID        string    `json:"room_id"`
	IconKey       string    `json:"icon_key"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	MemberCount   int       `json:"member_count"`
}

// CommunityUpdate is a partial community update
type CommunityUpdate struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	CommunityType *string `json:"community_type"`
	IconKey       *string `json:"icon_key"`
}

// Membership is the MEMBER_OF relationship between a user and a community
type Membership struct {
	CommunityUID string    `json:"community_uid"`
	UserUID      string    `json:"user_uid"`
	Role         string    `json:"role"`
	JoinedAt     time.Time `json:"joined_at"`
	IsMuted      bool      `json:"is_muted"`
}

// Member is a membership joined with the member's summary
type Member struct {
	User     UserSummary `json:"user"`
	Role     string      `json:"role"`
	JoinedAt time.Time   `json:"joined_at"`
	IsMuted  bool        `json:"is_muted"`
}

// ============================================================================
// Messaging
// ============================================================================

// Conversation mirrors a Matrix room the service created
type Conversation struct {
	UID           string    `json:"uid"`
	RoomID        string    `json:"room_id"`
	IsDirect      bool      `json:"is_direct"`
	Participants  []string  `json:"participants"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// LinkPreview is the unfurled metadata of the first link in a message
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	SiteName    string `json:"site_name"`
}

// Message mirrors a sent Matrix message
type Message struct {
	UID         string       `json:"uid"`
	EventID     string       `json:"event_id"`
	RoomID      string       `json:"room_id"`
	SenderUID   string       `json:"sender_uid"`
	Body        string       `json:"body"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	LinkPreview *LinkPreview `json:"link_preview,omitempty"`
	SentAt      time.Time    `json:"sent_at"`
}

// Reaction mirrors an m.annotation event
type Reaction struct {
	UID       string    `json:"uid"`
	EventID   string    `json:"event_id"`
	RoomID    string    `json:"room_id"`
	TargetID  string    `json:"target_event_id"`
	Key       string    `json:"key"`
	UserUID   string    `json:"user_uid"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================================================
// Agents
// ============================================================================

const (
	AgentActive   = "active"
	AgentInactive = "inactive"
)

// Agent is an AI actor that can be assigned to communities
type Agent struct {
	UID          string    `json:"uid"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	AgentType    string    `json:"agent_type"`
	Status       string    `json:"status"`
	Capabilities []string  `json:"capabilities"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AgentCommunityAssignment grants an agent permissions in one community
type AgentCommunityAssignment struct {
	UID          string    `json:"uid"`
	AgentUID     string    `json:"agent_uid"`
	CommunityUID string    `json:"community_uid"`
	Permissions  []string  `json:"permissions"`
	Status       string    `json:"status"`
	AssignedBy   string    `json:"assigned_by"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// AgentMemory is per-community working memory of an agent
type AgentMemory struct {
	UID          string            `json:"uid"`
	AgentUID     string            `json:"agent_uid"`
	CommunityUID string            `json:"community_uid"`
	Context      map[string]string `json:"context"`
	History      []string          `json:"history"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// AgentActionLog records one attempted agent action
type AgentActionLog struct {
	UID          string                 `json:"uid"`
	AgentUID     string                 `json:"agent_uid"`
	CommunityUID string                 `json:"community_uid"`
	ActionType   string                 `json:"action_type"`
	Details      map[string]interface{} `json:"details"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	DurationMS   int64                  `json:"duration_ms"`
	Timestamp    time.Time              `json:"timestamp"`
}

// ============================================================================
// Opportunities
// ============================================================================

const (
	OpportunityOpen   = "open"
	OpportunityClosed = "closed"
)

// Opportunity is a job posting
type Opportunity struct {
	UID             string    `json:"uid"`
	Role            string    `json:"role"`
	JobType         string    `json:"job_type"`
	Location        string    `json:"location"`
	IsRemote        bool      `json:"is_remote"`
	ExperienceLevel string    `json:"experience_level"`
	SalaryMin       float64   `json:"salary_min"`
	SalaryMax       float64   `json:"salary_max"`
	Currency        string    `json:"currency"`
	Description     string    `json:"description"`
	Skills          []string  `json:"skills"`
	CTALink         string    `json:"cta_link"`
	Status          string    `json:"status"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// OpportunityFilter narrows the opportunity feed
type OpportunityFilter struct {
	JobType         string `json:"job_type"`
	Location        string `json:"location"`
	Remote          *bool  `json:"remote"`
	Skill           string `json:"skill"`
	ExperienceLevel string `json:"experience_level"`
	Text            string `json:"text"`
	ViewerUID       string `json:"viewer_uid"`
	Skip            int    `json:"skip"`
	Limit           int    `json:"limit"`
}

// Application is a user's application to an opportunity
type Application struct {
	UID            string      `json:"uid"`
	OpportunityUID string      `json:"opportunity_uid"`
	ApplicantUID   string      `json:"applicant_uid"`
	Applicant      UserSummary `json:"applicant"`
	Note           string      `json:"note"`
	AppliedAt      time.Time   `json:"applied_at"`
}

// ============================================================================
// Marketplace
// ============================================================================

const (
	ListingActive = "active"
	ListingPaused = "paused"
)

// ServiceListing is a marketplace service offered by a user
type ServiceListing struct {
	UID           string    `json:"uid"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	PricingModel  string    `json:"pricing_model"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	DeliveryDays  int       `json:"delivery_days"`
	Tags          []string  `json:"tags"`
	Status        string    `json:"status"`
	RatingAverage float64   `json:"rating_average"`
	RatingCount   int       `json:"rating_count"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ServiceFilter narrows the marketplace feed
type ServiceFilter struct {
	Category string   `json:"category"`
	MaxPrice *float64 `json:"max_price"`
	Tag      string   `json:"tag"`
	Text     string   `json:"text"`
	Skip     int      `json:"skip"`
	Limit    int      `json:"limit"`
}

// Review is a rating left on a service listing
type Review struct {
	UID         string    `json:"uid"`
	ServiceUID  string    `json:"service_uid"`
	ReviewerUID string    `json:"reviewer_uid"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}
