package domain

// SubmissionStatus is the lifecycle state of a manuscript.
type SubmissionStatus string

const (
	StatusSubmitted        SubmissionStatus = "submitted"
	StatusDeskReview       SubmissionStatus = "desk_review"
	StatusDeskRejected     SubmissionStatus = "desk_rejected"
	StatusDeskAccepted     SubmissionStatus = "desk_accepted"
	StatusInReview         SubmissionStatus = "in_review"
	StatusReviewsCompleted SubmissionStatus = "reviews_completed"
	StatusMinorRevision    SubmissionStatus = "minor_revision"
	StatusMajorRevision    SubmissionStatus = "major_revision"
	StatusAccepted         SubmissionStatus = "accepted"
	StatusRejected         SubmissionStatus = "rejected"
	StatusPublished        SubmissionStatus = "published"
)

// Statuses lists every submission status in lifecycle order.
func Statuses() []SubmissionStatus {
	return []SubmissionStatus{
		StatusSubmitted, StatusDeskReview, StatusDeskRejected, StatusDeskAccepted,
		StatusInReview, StatusReviewsCompleted, StatusMinorRevision, StatusMajorRevision,
		StatusAccepted, StatusRejected, StatusPublished,
	}
}

// ReviewStatus is the state of one EditorialReview round.
type ReviewStatus string

const (
	ReviewPending    ReviewStatus = "pending"
	ReviewInProgress ReviewStatus = "in_progress"
	ReviewCompleted  ReviewStatus = "completed"
)

// Decision is the editor's verdict closing a review round.
type Decision string

const (
	DecisionReject           Decision = "reject"
	DecisionMinorRevision    Decision = "minor-revision"
	DecisionRevisionRequired Decision = "revision-required"
	DecisionAccept           Decision = "accept"
)

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionReject, DecisionMinorRevision, DecisionRevisionRequired, DecisionAccept:
		return true
	}
	return false
}

// IsRevision reports whether d sends the manuscript back to its authors.
func (d Decision) IsRevision() bool {
	return d == DecisionMinorRevision || d == DecisionRevisionRequired
}

// InvitationStatus is the state of a reviewer invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Author is one manuscript author. Minors need a guardian who consented.
type Author struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Institution     string `json:"institution,omitempty"`
	IsMinor         bool   `json:"is_minor"`
	GuardianName    string `json:"guardian_name,omitempty" validate:"required_if=IsMinor true"`
	GuardianEmail   string `json:"guardian_email,omitempty" validate:"omitempty,email"`
	GuardianConsent bool   `json:"guardian_consent"`
}

type Submission struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Abstract       string           `json:"abstract,omitempty"`
	SubjectArea    string           `json:"subject_area,omitempty"`
	Language       string           `json:"language,omitempty"`
	Authors        []Author         `json:"authors"`
	Status         SubmissionStatus `json:"status" enum:"submitted,desk_review,desk_rejected,desk_accepted,in_review,reviews_completed,minor_revision,major_revision,accepted,rejected,published"`
	Round          int              `json:"round"`
	OwnerID        string           `json:"owner_id"`
	CreatedAt      string           `json:"created_at" format:"date-time"`
	UpdatedAt      string           `json:"updated_at" format:"date-time"`
	DeskReviewedAt *string          `json:"desk_reviewed_at,omitempty" format:"date-time"`
	DecidedAt      *string          `json:"decided_at,omitempty" format:"date-time"`
}

type EditorialReview struct {
	ID               string       `json:"id"`
	SubmissionID     string       `json:"submission_id"`
	Round            int          `json:"round"`
	Status           ReviewStatus `json:"status" enum:"pending,in_progress,completed"`
	EditorID         string       `json:"editor_id"`
	Decision         *Decision    `json:"decision,omitempty" enum:"reject,minor-revision,revision-required,accept"`
	FeedbackToAuthor string       `json:"feedback_to_author,omitempty"`
	InternalComments string       `json:"internal_comments,omitempty"`
	CreatedAt        string       `json:"created_at" format:"date-time"`
	UpdatedAt        string       `json:"updated_at" format:"date-time"`
	CompletedAt      *string      `json:"completed_at,omitempty" format:"date-time"`
}

type ReviewerInvitation struct {
	ID                 string           `json:"id"`
	EditorialReviewID  string           `json:"editorial_review_id"`
	SubmissionID       string           `json:"submission_id"`
	Round              int              `json:"round"`
	ReviewerEmail      string           `json:"reviewer_email"`
	ReviewerName       string           `json:"reviewer_name"`
	Token              string           `json:"-"`
	Status             InvitationStatus `json:"status" enum:"pending,accepted,declined"`
	ConflictOfInterest *string          `json:"conflict_of_interest,omitempty"`
	ExpiresAt          string           `json:"expires_at" format:"date-time"`
	CreatedAt          string           `json:"created_at" format:"date-time"`
	RespondedAt        *string          `json:"responded_at,omitempty" format:"date-time"`
	InvitedBy          string           `json:"invited_by"`
	NotifiedAt         *string          `json:"notified_at,omitempty" format:"date-time"`
	RemindedAt         *string          `json:"reminded_at,omitempty" format:"date-time"`
}

// AssignmentSlot is one feedback/report/vote column group of the legacy sheet.
type AssignmentSlot struct {
	Feedback string `json:"feedback,omitempty"`
	Report   string `json:"report,omitempty"`
	Vote     string `json:"vote,omitempty"`
}

// AssignmentRecord is a row of the externally maintained assignment sheet.
type AssignmentRecord struct {
	ArticleName string            `json:"article_name"`
	AuthorName  string            `json:"author_name"`
	Link        string            `json:"link,omitempty"`
	Reviewer1   string            `json:"reviewer1,omitempty"`
	Reviewer2   string            `json:"reviewer2,omitempty"`
	Editor      string            `json:"editor,omitempty"`
	Deadline    string            `json:"deadline,omitempty"`
	Slots       [3]AssignmentSlot `json:"slots"`
}

// Completed reports whether the third feedback slot has been filled in.
func (a AssignmentRecord) Completed() bool {
	return a.Slots[2].Feedback != ""
}

// RubricScore is one role's stored scorecard for a review round.
type RubricScore struct {
	EditorialReviewID string         `json:"editorial_review_id"`
	Role              string         `json:"role" enum:"reviewer1,reviewer2,editor"`
	Scores            map[string]int `json:"scores"`
	Total             int            `json:"total"`
	Max               int            `json:"max"`
	ScorerID          string         `json:"scorer_id"`
	CreatedAt         string         `json:"created_at" format:"date-time"`
	UpdatedAt         string         `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
