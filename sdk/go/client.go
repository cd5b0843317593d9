package foliosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Folio HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client for baseURL, which includes the API base path (e.g. http://host/v1).
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Author struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Institution     string `json:"institution,omitempty"`
	IsMinor         bool   `json:"is_minor,omitempty"`
	GuardianName    string `json:"guardian_name,omitempty"`
	GuardianEmail   string `json:"guardian_email,omitempty"`
	GuardianConsent bool   `json:"guardian_consent,omitempty"`
}

// Submission represents the API manuscript model (partial).
type Submission struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Authors   []Author `json:"authors"`
	Status    string   `json:"status"`
	Round     int      `json:"round"`
	OwnerID   string   `json:"owner_id"`
	CreatedAt string   `json:"created_at"`
}

// NewSubmission is the body of CreateSubmission.
type NewSubmission struct {
	Title       string   `json:"title"`
	Abstract    string   `json:"abstract,omitempty"`
	SubjectArea string   `json:"subject_area,omitempty"`
	Language    string   `json:"language,omitempty"`
	Authors     []Author `json:"authors"`
}

type Invitation struct {
	ID                string `json:"id"`
	EditorialReviewID string `json:"editorial_review_id"`
	SubmissionID      string `json:"submission_id"`
	Round             int    `json:"round"`
	ReviewerEmail     string `json:"reviewer_email"`
	ReviewerName      string `json:"reviewer_name"`
	Status            string `json:"status"`
	ExpiresAt         string `json:"expires_at"`
}

// InvitationView is what an invited reviewer sees before answering.
type InvitationView struct {
	Invitation      Invitation `json:"invitation"`
	SubmissionTitle string     `json:"submission_title"`
	Abstract        string     `json:"abstract,omitempty"`
	Journal         string     `json:"journal"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type Assignment struct {
	ArticleName string `json:"article_name"`
	AuthorName  string `json:"author_name"`
	Reviewer1   string `json:"reviewer1,omitempty"`
	Reviewer2   string `json:"reviewer2,omitempty"`
	Editor      string `json:"editor,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
}

type Article struct {
	Title      string      `json:"title"`
	Assignment *Assignment `json:"assignment"`
	Match      string      `json:"match,omitempty"`
}

// WorkItem groups an author's open articles.
type WorkItem struct {
	AuthorName string    `json:"author_name"`
	Articles   []Article `json:"articles"`
}

// Me describes the authenticated caller.
type Me struct {
	ActorID     string   `json:"actor_id"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedSubmissions wraps list responses with cursors.
type PaginatedSubmissions struct {
	Items      []Submission `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateSubmission registers a manuscript.
func (c *Client) CreateSubmission(ctx context.Context, in NewSubmission) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodPost, "submissions", in, &resp)
	return resp, err
}

// SubmissionsPage lists manuscripts newest first, optionally filtered by status.
func (c *Client) SubmissionsPage(ctx context.Context, status string, limit int, cursor string) (PaginatedSubmissions, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedSubmissions
	err := c.do(ctx, http.MethodGet, withQuery("submissions", q), nil, &resp)
	return resp, err
}

// LookupInvitation fetches an invitation by its e-mailed token. No credentials are sent.
func (c *Client) LookupInvitation(ctx context.Context, token string) (InvitationView, error) {
	q := url.Values{"token": {token}}
	var resp InvitationView
	err := c.do(ctx, http.MethodGet, withQuery("invitations/lookup", q), nil, &resp)
	return resp, err
}

// RespondToInvitation answers an invitation by token. Accepting needs a
// conflict of interest statement.
func (c *Client) RespondToInvitation(ctx context.Context, token string, accept bool, conflictOfInterest string) (Invitation, error) {
	body := map[string]any{
		"token":                token,
		"accept":               accept,
		"conflict_of_interest": conflictOfInterest,
	}
	var resp Invitation
	err := c.do(ctx, http.MethodPost, "invitations/respond", body, &resp)
	return resp, err
}

// WorkQueue returns the reconciled queue of open articles per author.
func (c *Client) WorkQueue(ctx context.Context) ([]WorkItem, error) {
	var resp struct {
		Items []WorkItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "work-queue", nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

// Me returns the caller's roles and permissions.
func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
