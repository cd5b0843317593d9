package server

import (
	"folio/internal/domain"
	"folio/internal/engine"
	"folio/internal/repo"
	"folio/internal/rubric"
)

// Request payloads

type AuthorRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email" format:"email"`
	Institution     string `json:"institution,omitempty"`
	IsMinor         bool   `json:"is_minor,omitempty"`
	GuardianName    string `json:"guardian_name,omitempty"`
	GuardianEmail   string `json:"guardian_email,omitempty"`
	GuardianConsent bool   `json:"guardian_consent,omitempty"`
}

func (a AuthorRequest) author() domain.Author {
	return domain.Author{
		Name:            a.Name,
		Email:           a.Email,
		Institution:     a.Institution,
		IsMinor:         a.IsMinor,
		GuardianName:    a.GuardianName,
		GuardianEmail:   a.GuardianEmail,
		GuardianConsent: a.GuardianConsent,
	}
}

func authors(in []AuthorRequest) []domain.Author {
	out := make([]domain.Author, 0, len(in))
	for _, a := range in {
		out = append(out, a.author())
	}
	return out
}

type CreateSubmissionRequest struct {
	ID          string          `json:"id,omitempty"`
	Title       string          `json:"title"`
	Abstract    string          `json:"abstract,omitempty"`
	SubjectArea string          `json:"subject_area,omitempty"`
	Language    string          `json:"language,omitempty"`
	Authors     []AuthorRequest `json:"authors"`
}

type DeskReviewRequest struct {
	EditorID string `json:"editor_id,omitempty" doc:"Defaults to the caller"`
}

type DeskDecisionRequest struct {
	Accept           bool   `json:"accept"`
	FeedbackToAuthor string `json:"feedback_to_author,omitempty"`
	InternalComments string `json:"internal_comments,omitempty"`
}

type ResubmitRequest struct {
	Title    string          `json:"title,omitempty"`
	Abstract string          `json:"abstract,omitempty"`
	Authors  []AuthorRequest `json:"authors,omitempty"`
}

type SendInvitationRequest struct {
	SubmissionID  string `json:"submission_id,omitempty"`
	Round         int    `json:"round,omitempty"`
	ReviewerEmail string `json:"reviewer_email"`
	ReviewerName  string `json:"reviewer_name"`
	ExpiresInDays int    `json:"expires_in_days,omitempty"`
	Locale        string `json:"locale,omitempty" enum:"es,en"`
}

type InvitationResponseRequest struct {
	Accept             bool   `json:"accept"`
	ConflictOfInterest string `json:"conflict_of_interest,omitempty" doc:"Required when accepting"`
}

type TokenResponseRequest struct {
	Token string `json:"token"`
	InvitationResponseRequest
}

type ReminderRequest struct {
	OlderThanDays int `json:"older_than_days,omitempty"`
}

type ScoreRequest struct {
	Scores map[string]int `json:"scores"`
}

type DecisionRequest struct {
	Decision         string `json:"decision,omitempty" enum:"reject,minor-revision,revision-required,accept" doc:"Defaults to the rubric recommendation"`
	FeedbackToAuthor string `json:"feedback_to_author,omitempty"`
	InternalComments string `json:"internal_comments,omitempty"`
}

type RoleGrantRequest struct {
	ActorID string `json:"actor_id"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id,omitempty" doc:"Defaults to the caller"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type SubmissionListResponse struct {
	Items      []domain.Submission `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type InvitationListResponse struct {
	Items []domain.ReviewerInvitation `json:"items"`
}

type ReminderListResponse struct {
	Items []engine.Reminder `json:"items"`
}

type EventListResponse struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type DeskReviewResponse struct {
	Submission domain.Submission      `json:"submission"`
	Review     domain.EditorialReview `json:"review"`
}

type RubricResponse struct {
	Roles map[string][]rubric.Criterion `json:"roles"`
	Max   map[string]int                `json:"max"`
}

type MeResponse struct {
	ActorID     string   `json:"actor_id"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key" doc:"Shown once"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type RoleGrantListResponse struct {
	Items []repo.RoleGrant `json:"items"`
}

type APIKeyListResponse struct {
	Items []domain.APIKey `json:"items"`
}
