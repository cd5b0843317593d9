package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"folio/internal/domain"
	"folio/internal/engine"
	"folio/internal/engine/auth"
	"folio/internal/repo"
)

func registerSubmissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-submission",
		Method:        http.MethodPost,
		Path:          "/submissions",
		Summary:       "Submit a manuscript",
		DefaultStatus: http.StatusCreated,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateSubmissionRequest `json:"body"`
	}) (*struct {
		Body domain.Submission `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sub, err := e.CreateSubmission(ctx, p, engine.SubmissionCreateOptions{
			ID:          input.Body.ID,
			Title:       input.Body.Title,
			Abstract:    input.Body.Abstract,
			SubjectArea: input.Body.SubjectArea,
			Language:    input.Body.Language,
			Authors:     authors(input.Body.Authors),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Submission `json:"body"`
		}{Body: sub}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/submissions",
		Summary:     "List submissions",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body SubmissionListResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListSubmissions(ctx, p, repo.SubmissionFilters{
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := SubmissionListResponse{Items: []domain.Submission{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body SubmissionListResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submission-summary",
		Method:      http.MethodGet,
		Path:        "/submissions/summary",
		Summary:     "Count submissions by status",
		Errors:      standardErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		counts, err := e.StatusSummary(ctx, p)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: counts}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{id}",
		Summary:     "Get a submission with its reviews and invitations",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body engine.SubmissionDetail `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		detail, err := e.GetSubmission(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SubmissionDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-desk-review",
		Method:      http.MethodPost,
		Path:        "/submissions/{id}/desk-review",
		Summary:     "Open desk review",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body DeskReviewRequest `json:"body" required:"false"`
	}) (*struct {
		Body DeskReviewResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		editorID := input.Body.EditorID
		if editorID == "" {
			editorID = p.ActorID
		}
		sub, rv, err := e.StartDeskReview(ctx, p, input.ID, editorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeskReviewResponse `json:"body"`
		}{Body: DeskReviewResponse{Submission: sub, Review: rv}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "desk-decision",
		Method:      http.MethodPost,
		Path:        "/submissions/{id}/desk-decision",
		Summary:     "Accept or reject at the desk",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body DeskDecisionRequest `json:"body"`
	}) (*struct {
		Body domain.Submission `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sub, err := e.RecordDeskDecision(ctx, p, engine.DeskDecisionOptions{
			SubmissionID:     input.ID,
			Accept:           input.Body.Accept,
			FeedbackToAuthor: input.Body.FeedbackToAuthor,
			InternalComments: input.Body.InternalComments,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Submission `json:"body"`
		}{Body: sub}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resubmit-submission",
		Method:      http.MethodPost,
		Path:        "/submissions/{id}/resubmit",
		Summary:     "Resubmit a revised manuscript",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body ResubmitRequest `json:"body" required:"false"`
	}) (*struct {
		Body domain.Submission `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.RevisionOptions{
			SubmissionID: input.ID,
			Title:        input.Body.Title,
			Abstract:     input.Body.Abstract,
		}
		if len(input.Body.Authors) > 0 {
			opts.Authors = authors(input.Body.Authors)
		}
		sub, err := e.ResubmitRevision(ctx, p, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Submission `json:"body"`
		}{Body: sub}, nil
	})

	transitions := []struct {
		id, path, summary string
		fn                func(context.Context, auth.Principal, string) (domain.Submission, error)
	}{
		{"complete-reviews", "/submissions/{id}/complete-reviews", "Close peer review", e.MarkReviewsCompleted},
		{"publish-submission", "/submissions/{id}/publish", "Publish an accepted manuscript", e.Publish},
	}
	for _, t := range transitions {
		t := t
		huma.Register(api, huma.Operation{
			OperationID: t.id,
			Method:      http.MethodPost,
			Path:        t.path,
			Summary:     t.summary,
			Errors:      standardErrors,
		}, func(ctx context.Context, input *struct {
			ID string `path:"id"`
		}) (*struct {
			Body domain.Submission `json:"body"`
		}, error) {
			p, authErr := requirePrincipal(ctx)
			if authErr != nil {
				return nil, authErr
			}
			sub, err := t.fn(ctx, p, input.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.Submission `json:"body"`
			}{Body: sub}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "repair-submission",
		Method:      http.MethodPost,
		Path:        "/submissions/{id}/repair",
		Summary:     "Re-derive status and round from the review history",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body engine.RepairResult `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RepairSubmission(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.RepairResult `json:"body"`
		}{Body: res}, nil
	})
}
