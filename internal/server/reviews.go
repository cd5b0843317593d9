package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"folio/internal/domain"
	"folio/internal/engine"
	"folio/internal/rubric"
)

func registerReviews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-scorecard",
		Method:      http.MethodGet,
		Path:        "/reviews/{id}/scorecard",
		Summary:     "Rubric scores of a review round",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body engine.Scorecard `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		card, err := e.Scorecard(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Scorecard `json:"body"`
		}{Body: card}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-score",
		Method:      http.MethodPut,
		Path:        "/reviews/{id}/scores/{role}",
		Summary:     "Record a role's rubric scorecard",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Role string       `path:"role" enum:"reviewer1,reviewer2,editor"`
		Body ScoreRequest `json:"body"`
	}) (*struct {
		Body engine.ScoreResult `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RecordScore(ctx, p, engine.ScoreOptions{
			ReviewID: input.ID,
			Role:     input.Role,
			Scores:   input.Body.Scores,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ScoreResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-decision",
		Method:      http.MethodPost,
		Path:        "/reviews/{id}/decision",
		Summary:     "Decide a review round",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body DecisionRequest `json:"body"`
	}) (*struct {
		Body engine.DecisionResult `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RecordDecision(ctx, p, engine.DecisionOptions{
			ReviewID:         input.ID,
			Decision:         domain.Decision(strings.TrimSpace(input.Body.Decision)),
			FeedbackToAuthor: input.Body.FeedbackToAuthor,
			InternalComments: input.Body.InternalComments,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DecisionResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-invitation",
		Method:        http.MethodPost,
		Path:          "/reviews/{id}/invitations",
		Summary:       "Invite a reviewer to a review round",
		DefaultStatus: http.StatusCreated,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body SendInvitationRequest `json:"body"`
	}) (*struct {
		Body domain.ReviewerInvitation `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.SendInvitation(ctx, p, engine.InvitationSendOptions{
			EditorialReviewID: input.ID,
			SubmissionID:      input.Body.SubmissionID,
			Round:             input.Body.Round,
			ReviewerEmail:     input.Body.ReviewerEmail,
			ReviewerName:      input.Body.ReviewerName,
			ExpiresInDays:     input.Body.ExpiresInDays,
			Locale:            input.Body.Locale,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReviewerInvitation `json:"body"`
		}{Body: inv}, nil
	})
}

func registerRubric(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-rubric",
		Method:      http.MethodGet,
		Path:        "/rubric",
		Summary:     "Scoring criteria per role",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RubricResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		resp := RubricResponse{Roles: map[string][]rubric.Criterion{}, Max: map[string]int{}}
		for _, role := range rubric.Roles() {
			resp.Roles[string(role)] = rubric.Criteria(role)
			resp.Max[string(role)] = rubric.MaxFor(role)
		}
		return &struct {
			Body RubricResponse `json:"body"`
		}{Body: resp}, nil
	})
}
