package foliosdk

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"folio/internal/config"
	"folio/internal/db"
	"folio/internal/engine"
	"folio/internal/engine/auth"
	"folio/internal/migrate"
	"folio/internal/repo"
	"folio/internal/server"
)

const testSecret = "sdk-secret"

func startServer(t *testing.T) (string, engine.Engine) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("journal-1"))
	handler, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		conn.Close()
	})
	return "http://" + ln.Addr().String() + "/v1", e
}

func token(t *testing.T, actorID, email string, roles ...string) string {
	t.Helper()
	tok, err := server.SignToken(testSecret, actorID, email, roles, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestClientSubmitAndAnswerInvitation(t *testing.T) {
	baseURL, e := startServer(t)
	ctx := context.Background()

	author := New(baseURL)
	author.BearerToken = token(t, "author-1", "ana@school.test", "author")
	sub, err := author.CreateSubmission(ctx, NewSubmission{
		Title:   "El agua salada",
		Authors: []Author{{Name: "Ana Pérez", Email: "ana@school.test"}},
	})
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}
	if sub.Status != "submitted" || sub.OwnerID != "author-1" {
		t.Fatalf("submission = %+v", sub)
	}

	editor := auth.Principal{ActorID: "ed", Roles: []string{"editor"}}
	_, rv, err := e.StartDeskReview(ctx, editor, sub.ID, "")
	if err != nil {
		t.Fatalf("desk review: %v", err)
	}
	if _, err := e.RecordDeskDecision(ctx, editor, engine.DeskDecisionOptions{SubmissionID: sub.ID, Accept: true}); err != nil {
		t.Fatalf("desk decision: %v", err)
	}
	if _, err := e.SendInvitation(ctx, editor, engine.InvitationSendOptions{
		EditorialReviewID: rv.ID,
		ReviewerEmail:     "rev1@uni.test",
		ReviewerName:      "Marta",
	}); err != nil {
		t.Fatalf("send invitation: %v", err)
	}
	invs, err := e.Repo.ListInvitations(ctx, nil, repo.InvitationFilters{ReviewID: rv.ID})
	if err != nil || len(invs) != 1 {
		t.Fatalf("invitations = %d, %v", len(invs), err)
	}

	reviewer := New(baseURL)
	view, err := reviewer.LookupInvitation(ctx, invs[0].Token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if view.SubmissionTitle != "El agua salada" || view.Invitation.Status != "pending" {
		t.Fatalf("view = %+v", view)
	}

	_, err = reviewer.RespondToInvitation(ctx, invs[0].Token, true, "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "bad_request" {
		t.Fatalf("accept without statement: %v", err)
	}
	inv, err := reviewer.RespondToInvitation(ctx, invs[0].Token, true, "none")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if inv.Status != "accepted" {
		t.Fatalf("status = %s", inv.Status)
	}

	if _, err := reviewer.LookupInvitation(ctx, "missing"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown token: %v", err)
	}
}

func TestClientListsAndReportsErrors(t *testing.T) {
	baseURL, _ := startServer(t)
	ctx := context.Background()

	chief := New(baseURL)
	chief.BearerToken = token(t, "eic", "eic@journal.test", "editor-in-chief")
	for _, title := range []string{"Uno", "Dos", "Tres"} {
		if _, err := chief.CreateSubmission(ctx, NewSubmission{Title: title, Authors: []Author{{Name: "Ana", Email: "ana@school.test"}}}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	page, err := chief.SubmissionsPage(ctx, "submitted", 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("first page = %d items, cursor %q", len(page.Items), page.NextCursor)
	}
	page, err = chief.SubmissionsPage(ctx, "submitted", 2, page.NextCursor)
	if err != nil || len(page.Items) != 1 || page.NextCursor != "" {
		t.Fatalf("second page = %+v, %v", page, err)
	}

	events, err := chief.Events(ctx, 10)
	if err != nil || len(events) != 3 || events[0].Type != "submission.created" {
		t.Fatalf("events = %+v, %v", events, err)
	}
	me, err := chief.Me(ctx)
	if err != nil || me.ActorID != "eic" || len(me.Permissions) == 0 {
		t.Fatalf("me = %+v, %v", me, err)
	}

	var apiErr *APIError
	if _, err := chief.WorkQueue(ctx); !errors.As(err, &apiErr) || apiErr.Code != "not_configured" {
		t.Fatalf("work queue without sources: %v", err)
	}
	if _, err := New(baseURL).Me(ctx); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous me: %v", err)
	}
}
