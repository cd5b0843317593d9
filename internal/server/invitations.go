package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"folio/internal/domain"
	"folio/internal/engine"
	"folio/internal/repo"
)

func registerInvitations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-invitations",
		Method:      http.MethodGet,
		Path:        "/invitations",
		Summary:     "List reviewer invitations",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		ReviewID     string `query:"review_id"`
		SubmissionID string `query:"submission_id"`
		Status       string `query:"status" enum:"pending,accepted,declined"`
		Email        string `query:"email"`
		Limit        int    `query:"limit" default:"50"`
	}) (*struct {
		Body InvitationListResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListInvitations(ctx, p, repo.InvitationFilters{
			ReviewID:     input.ReviewID,
			SubmissionID: input.SubmissionID,
			Status:       input.Status,
			Email:        input.Email,
			Limit:        normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := InvitationListResponse{Items: []domain.ReviewerInvitation{}}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body InvitationListResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "respond-invitation",
		Method:      http.MethodPost,
		Path:        "/invitations/{id}/respond",
		Summary:     "Accept or decline an invitation as a signed-in reviewer",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                    `path:"id"`
		Body InvitationResponseRequest `json:"body"`
	}) (*struct {
		Body domain.ReviewerInvitation `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.RespondToInvitation(ctx, p, input.ID, engine.InvitationResponse{
			Accept:             input.Body.Accept,
			ConflictOfInterest: input.Body.ConflictOfInterest,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReviewerInvitation `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resend-invitation",
		Method:      http.MethodPost,
		Path:        "/invitations/{id}/resend",
		Summary:     "Reissue a pending invitation with a fresh token",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.ReviewerInvitation `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.ResendInvitation(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReviewerInvitation `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-reminders",
		Method:      http.MethodPost,
		Path:        "/invitations/reminders",
		Summary:     "Remind reviewers with pending invitations",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		Body ReminderRequest `json:"body" required:"false"`
	}) (*struct {
		Body ReminderListResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.OlderThanDays < 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "older_than_days must not be negative", map[string]any{"field": "older_than_days"})
		}
		olderThan := time.Duration(input.Body.OlderThanDays) * 24 * time.Hour
		items, err := e.SendReminders(ctx, p, olderThan)
		if err != nil {
			return nil, handleError(err)
		}
		resp := ReminderListResponse{Items: []engine.Reminder{}}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body ReminderListResponse `json:"body"`
		}{Body: resp}, nil
	})
}

// registerPublicInvitations serves the mailed link. The token authenticates.
func registerPublicInvitations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "lookup-invitation",
		Method:      http.MethodGet,
		Path:        "/invitations/lookup",
		Summary:     "Show an invitation by token",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Token string `query:"token" required:"true"`
		Lang  string `query:"lang"`
	}) (*struct {
		Body engine.InvitationView `json:"body"`
	}, error) {
		view, err := e.GetInvitationByToken(ctx, input.Token)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.InvitationView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "respond-invitation-by-token",
		Method:      http.MethodPost,
		Path:        "/invitations/respond",
		Summary:     "Accept or decline an invitation by token",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body TokenResponseRequest `json:"body"`
	}) (*struct {
		Body domain.ReviewerInvitation `json:"body"`
	}, error) {
		inv, err := e.RespondByToken(ctx, input.Body.Token, engine.InvitationResponse{
			Accept:             input.Body.Accept,
			ConflictOfInterest: input.Body.ConflictOfInterest,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReviewerInvitation `json:"body"`
		}{Body: inv}, nil
	})
}
