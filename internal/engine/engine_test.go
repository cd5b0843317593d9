package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"folio/internal/config"
	"folio/internal/db"
	"folio/internal/domain"
	"folio/internal/engine"
	"folio/internal/engine/auth"
	"folio/internal/fault"
	"folio/internal/migrate"
	"folio/internal/notify"
	"folio/internal/repo"
	"folio/internal/rubric"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

var (
	chief  = auth.Principal{ActorID: "eic", Email: "eic@journal.test", Roles: []string{"editor-in-chief"}}
	editor = auth.Principal{ActorID: "ed-1", Email: "ed@journal.test", Roles: []string{"editor"}}
	author = auth.Principal{ActorID: "author-1", Email: "ana@school.test", Roles: []string{"author"}}
	rev1   = auth.Principal{ActorID: "rev-1", Email: "rev1@uni.test", Roles: []string{"reviewer"}}
	rev2   = auth.Principal{ActorID: "rev-2", Email: "rev2@uni.test", Roles: []string{"reviewer"}}
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSender) sentTo(addr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.To == addr {
			n++
		}
	}
	return n
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Mail   *recordingSender
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("journal-1"))
	eng.Now = func() time.Time { return t0 }
	mail := &recordingSender{}
	eng.Notifier = mail
	return testEnv{Engine: eng, Ctx: context.Background(), Mail: mail}
}

func (env testEnv) at(d time.Duration) testEnv {
	env.Engine.Now = func() time.Time { return t0.Add(d) }
	return env
}

func fullScores(role rubric.Role, level int) map[string]int {
	out := map[string]int{}
	for _, c := range rubric.Criteria(role) {
		out[c.Key] = level
	}
	return out
}

func createSubmission(t *testing.T, env testEnv) domain.Submission {
	t.Helper()
	sub, err := env.Engine.CreateSubmission(env.Ctx, author, engine.SubmissionCreateOptions{
		Title:    "El agua salada",
		Abstract: "Un estudio sobre la salinidad.",
		Language: "es",
		Authors:  []domain.Author{{Name: "Ana Pérez", Email: "Ana@School.test"}},
	})
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}
	return sub
}

// deskAccepted returns a submission accepted at desk review and its round-1 review.
func deskAccepted(t *testing.T, env testEnv) (domain.Submission, domain.EditorialReview) {
	t.Helper()
	sub := createSubmission(t, env)
	_, rv, err := env.Engine.StartDeskReview(env.Ctx, editor, sub.ID, "")
	if err != nil {
		t.Fatalf("start desk review: %v", err)
	}
	sub, err = env.Engine.RecordDeskDecision(env.Ctx, editor, engine.DeskDecisionOptions{SubmissionID: sub.ID, Accept: true})
	if err != nil {
		t.Fatalf("desk accept: %v", err)
	}
	return sub, rv
}

func invite(t *testing.T, env testEnv, rv domain.EditorialReview, p auth.Principal) domain.ReviewerInvitation {
	t.Helper()
	inv, err := env.Engine.SendInvitation(env.Ctx, editor, engine.InvitationSendOptions{
		EditorialReviewID: rv.ID,
		ReviewerEmail:     p.Email,
		ReviewerName:      p.ActorID,
	})
	if err != nil {
		t.Fatalf("send invitation to %s: %v", p.Email, err)
	}
	return inv
}

// reviewsCompleted drives a fresh submission to reviews_completed without scores.
func reviewsCompleted(t *testing.T, env testEnv) (domain.Submission, domain.EditorialReview) {
	t.Helper()
	_, rv := deskAccepted(t, env)
	invite(t, env, rv, rev1)
	sub, err := env.Engine.MarkReviewsCompleted(env.Ctx, editor, rv.SubmissionID)
	if err != nil {
		t.Fatalf("mark reviews completed: %v", err)
	}
	return sub, rv
}

func TestEditorialHappyPath(t *testing.T) {
	env := newTestEnv(t)
	sub, rv := deskAccepted(t, env)
	if sub.Status != domain.StatusDeskAccepted || sub.Round != 1 || sub.DeskReviewedAt == nil {
		t.Fatalf("unexpected desk-accepted submission: %+v", sub)
	}
	inv1 := invite(t, env, rv, rev1)
	inv2 := invite(t, env, rv, rev2)
	if inv1.Status != domain.InvitationPending || inv1.NotifiedAt == nil {
		t.Fatalf("invitation should be pending and notified: %+v", inv1)
	}
	if env.Mail.sentTo(rev1.Email) != 1 {
		t.Fatalf("reviewer 1 should have one mail")
	}
	detail, err := env.Engine.GetSubmission(env.Ctx, editor, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if detail.Submission.Status != domain.StatusInReview || len(detail.Invitations) != 2 {
		t.Fatalf("first invitation should move submission to in_review: %+v", detail)
	}

	for _, inv := range []domain.ReviewerInvitation{inv1, inv2} {
		if _, err := env.Engine.RespondByToken(env.Ctx, inv.Token, engine.InvitationResponse{Accept: true, ConflictOfInterest: "none"}); err != nil {
			t.Fatalf("accept invitation: %v", err)
		}
	}
	res, err := env.Engine.RecordScore(env.Ctx, rev1, engine.ScoreOptions{ReviewID: rv.ID, Role: "reviewer1", Scores: fullScores(rubric.RoleReviewer1, 2)})
	if err != nil {
		t.Fatalf("reviewer1 score: %v", err)
	}
	if res.ReviewsCompleted || res.Summary.Total != 8 {
		t.Fatalf("unexpected first score result: %+v", res)
	}
	res, err = env.Engine.RecordScore(env.Ctx, rev2, engine.ScoreOptions{ReviewID: rv.ID, Role: "reviewer2", Scores: fullScores(rubric.RoleReviewer2, 2)})
	if err != nil {
		t.Fatalf("reviewer2 score: %v", err)
	}
	if !res.ReviewsCompleted {
		t.Fatalf("second reviewer scorecard should complete reviews")
	}
	if _, err := env.Engine.RecordScore(env.Ctx, editor, engine.ScoreOptions{ReviewID: rv.ID, Role: "editor", Scores: fullScores(rubric.RoleEditor, 2)}); err != nil {
		t.Fatalf("editor score: %v", err)
	}
	card, err := env.Engine.Scorecard(env.Ctx, editor, rv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if card.Overall == nil || len(card.Missing) != 0 {
		t.Fatalf("scorecard should be complete: %+v", card)
	}

	dec, err := env.Engine.RecordDecision(env.Ctx, editor, engine.DecisionOptions{ReviewID: rv.ID, FeedbackToAuthor: "Excelente trabajo"})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if dec.Recommendation == nil || dec.Recommendation.Recommendation != rubric.AcceptWithoutChanges {
		t.Fatalf("expected rubric recommendation to accept: %+v", dec.Recommendation)
	}
	if dec.Submission.Status != domain.StatusAccepted || dec.NextReview != nil {
		t.Fatalf("unexpected decision result: %+v", dec)
	}
	if env.Mail.sentTo("ana@school.test") != 1 {
		t.Fatalf("author should be notified of the decision")
	}
	sub, err = env.Engine.Publish(env.Ctx, chief, sub.ID)
	if err != nil || sub.Status != domain.StatusPublished {
		t.Fatalf("publish: %v %+v", err, sub)
	}
}

func TestSecondDecisionConflicts(t *testing.T) {
	env := newTestEnv(t)
	_, rv := reviewsCompleted(t, env)
	dec, err := env.Engine.RecordDecision(env.Ctx, editor, engine.DecisionOptions{ReviewID: rv.ID, Decision: domain.DecisionReject})
	if err != nil {
		t.Fatalf("first decision: %v", err)
	}
	if dec.Submission.Status != domain.StatusRejected {
		t.Fatalf("expected rejected, got %s", dec.Submission.Status)
	}
	_, err = env.Engine.RecordDecision(env.Ctx, editor, engine.DecisionOptions{ReviewID: rv.ID, Decision: domain.DecisionAccept})
	if !fault.IsConflict(err) || err.Error() != "review already completed" {
		t.Fatalf("expected review already completed conflict, got %v", err)
	}
	stored, err := env.Engine.Repo.GetReview(env.Ctx, nil, rv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Decision == nil || *stored.Decision != domain.DecisionReject {
		t.Fatalf("first decision must stand, got %v", stored.Decision)
	}
}

func TestDecisionWithoutScorecardsNeedsExplicitDecision(t *testing.T) {
	env := newTestEnv(t)
	_, rv := reviewsCompleted(t, env)
	_, err := env.Engine.RecordDecision(env.Ctx, editor, engine.DecisionOptions{ReviewID: rv.ID})
	if !fault.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = env.Engine.RecordDecision(env.Ctx, editor, engine.DecisionOptions{ReviewID: rv.ID, Decision: "maybe"})
	if !fault.IsValidation(err) {
		t.Fatalf("expected validation error for unknown decision, got %v", err)
	}
}

func TestRevisionLoopAdvancesRound(t *testing.T) {
	env := newTestEnv(t)
	sub, rv := reviewsCompleted(t, env)
	dec, err := env.Engine.RecordDecision(env.Ctx, editor, engine.DecisionOptions{ReviewID: rv.ID, Decision: domain.DecisionMinorRevision})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if dec.Submission.Status != domain.StatusMinorRevision || dec.Submission.Round != 2 {
		t.Fatalf("expected minor_revision round 2, got %s round %d", dec.Submission.Status, dec.Submission.Round)
	}
	if dec.NextReview == nil || dec.NextReview.Round != 2 || dec.NextReview.Status != domain.ReviewPending {
		t.Fatalf("expected pending round-2 review, got %+v", dec.NextReview)
	}

	if _, err := env.Engine.ResubmitRevision(env.Ctx, rev1, engine.RevisionOptions{SubmissionID: sub.ID}); err == nil {
		t.Fatalf("only the owner or an editor may resubmit")
	}
	sub, err = env.Engine.ResubmitRevision(env.Ctx, author, engine.RevisionOptions{SubmissionID: sub.ID, Title: "El agua salada (revisado)"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if sub.Status != domain.StatusInReview || sub.Round != 2 || sub.Title != "El agua salada (revisado)" {
		t.Fatalf("unexpected resubmitted submission: %+v", sub)
	}
	open, err := env.Engine.Repo.OpenReview(env.Ctx, nil, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if open.ID != dec.NextReview.ID || open.Status != domain.ReviewInProgress {
		t.Fatalf("round-2 review should be in progress: %+v", open)
	}

	// the same reviewer may be invited again in the new round
	invite(t, env, open, rev1)
	if _, err := env.Engine.MarkReviewsCompleted(env.Ctx, editor, sub.ID); err != nil {
		t.Fatal(err)
	}
	dec, err = env.Engine.RecordDecision(env.Ctx, editor, engine.DecisionOptions{ReviewID: open.ID, Decision: domain.DecisionAccept})
	if err != nil {
		t.Fatalf("round-2 decision: %v", err)
	}
	if dec.Submission.Status != domain.StatusAccepted || dec.Submission.Round != 2 {
		t.Fatalf("expected accepted in round 2, got %s round %d", dec.Submission.Status, dec.Submission.Round)
	}
	reviews, err := env.Engine.Repo.ListReviews(env.Ctx, nil, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 2 || reviews[0].Round != 1 || reviews[1].Round != 2 {
		t.Fatalf("expected one review per round, got %+v", reviews)
	}
}

func TestDeskRejectCompletesReview(t *testing.T) {
	env := newTestEnv(t)
	sub := createSubmission(t, env)
	if _, _, err := env.Engine.StartDeskReview(env.Ctx, author, sub.ID, ""); err == nil {
		t.Fatalf("authors cannot start desk review")
	} else {
		var fe auth.ForbiddenError
		if !errors.As(err, &fe) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	}
	_, rv, err := env.Engine.StartDeskReview(env.Ctx, editor, sub.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	sub, err = env.Engine.RecordDeskDecision(env.Ctx, editor, engine.DeskDecisionOptions{SubmissionID: sub.ID, FeedbackToAuthor: "Fuera de alcance"})
	if err != nil {
		t.Fatalf("desk reject: %v", err)
	}
	if sub.Status != domain.StatusDeskRejected {
		t.Fatalf("expected desk_rejected, got %s", sub.Status)
	}
	stored, err := env.Engine.Repo.GetReview(env.Ctx, nil, rv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.ReviewCompleted || stored.Decision == nil || *stored.Decision != domain.DecisionReject {
		t.Fatalf("desk rejection should complete the review with reject: %+v", stored)
	}
	if env.Mail.sentTo("ana@school.test") != 1 {
		t.Fatalf("author should be told about the desk rejection")
	}
	if _, _, err := env.Engine.StartDeskReview(env.Ctx, editor, sub.ID, ""); !fault.IsConflict(err) {
		t.Fatalf("desk_rejected is terminal, got %v", err)
	}
}

func TestInvitationRespondOnce(t *testing.T) {
	env := newTestEnv(t)
	_, rv := deskAccepted(t, env)
	inv := invite(t, env, rv, rev1)

	_, err := env.Engine.RespondByToken(env.Ctx, inv.Token, engine.InvitationResponse{Accept: true})
	if !fault.IsValidation(err) {
		t.Fatalf("accepting without conflict of interest should fail validation, got %v", err)
	}
	got, err := env.Engine.RespondByToken(env.Ctx, inv.Token, engine.InvitationResponse{Accept: true, ConflictOfInterest: "none"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got.Status != domain.InvitationAccepted || got.RespondedAt == nil {
		t.Fatalf("unexpected response: %+v", got)
	}
	_, err = env.Engine.RespondByToken(env.Ctx, inv.Token, engine.InvitationResponse{Accept: false})
	if !fault.IsConflict(err) || err.Error() != "invitation already processed" {
		t.Fatalf("expected invitation already processed, got %v", err)
	}
	stored, err := env.Engine.Repo.GetInvitation(env.Ctx, nil, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.InvitationAccepted {
		t.Fatalf("first response must stand, got %s", stored.Status)
	}
}

func TestDuplicateInvitationConflicts(t *testing.T) {
	env := newTestEnv(t)
	_, rv := deskAccepted(t, env)
	invite(t, env, rv, rev1)
	_, err := env.Engine.SendInvitation(env.Ctx, editor, engine.InvitationSendOptions{
		EditorialReviewID: rv.ID,
		ReviewerEmail:     strings.ToUpper(rev1.Email),
		ReviewerName:      "again",
	})
	if !fault.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	invs, err := env.Engine.ListInvitations(env.Ctx, editor, repo.InvitationFilters{ReviewID: rv.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(invs) != 1 {
		t.Fatalf("expected a single invitation, got %d", len(invs))
	}
}

func TestSendInvitationValidatesEmail(t *testing.T) {
	env := newTestEnv(t)
	_, rv := deskAccepted(t, env)
	_, err := env.Engine.SendInvitation(env.Ctx, editor, engine.InvitationSendOptions{
		EditorialReviewID: rv.ID,
		ReviewerEmail:     "not-an-email",
		ReviewerName:      "Someone",
	})
	var ve fault.ValidationError
	if !errors.As(err, &ve) || ve.Field != "reviewer_email" {
		t.Fatalf("expected reviewer_email validation error, got %v", err)
	}
}

func TestInvitationExpiresAfterSevenDays(t *testing.T) {
	env := newTestEnv(t)
	_, rv := deskAccepted(t, env)
	inv := invite(t, env, rv, rev1)

	view, err := env.at(6*24*time.Hour).Engine.GetInvitationByToken(env.Ctx, inv.Token)
	if err != nil {
		t.Fatalf("lookup on day 6: %v", err)
	}
	if view.SubmissionTitle != "El agua salada" {
		t.Fatalf("unexpected view: %+v", view)
	}
	day8 := env.at(8 * 24 * time.Hour)
	if _, err := day8.Engine.GetInvitationByToken(env.Ctx, inv.Token); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found on day 8, got %v", err)
	}
	if _, err := day8.Engine.RespondByToken(env.Ctx, inv.Token, engine.InvitationResponse{Accept: false}); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found when responding on day 8, got %v", err)
	}
	if _, err := env.Engine.GetInvitationByToken(env.Ctx, "unknown"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("unknown token should be not found, got %v", err)
	}
}

func TestResendInvitationRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	_, rv := deskAccepted(t, env)
	inv := invite(t, env, rv, rev1)
	later := env.at(5 * 24 * time.Hour)
	renewed, err := later.Engine.ResendInvitation(env.Ctx, editor, inv.ID)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if renewed.Token == inv.Token || renewed.ExpiresAt <= inv.ExpiresAt {
		t.Fatalf("resend should rotate token and extend expiry: %+v", renewed)
	}
	if _, err := later.Engine.GetInvitationByToken(env.Ctx, inv.Token); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("old token should stop working, got %v", err)
	}
	if _, err := env.at(10*24*time.Hour).Engine.GetInvitationByToken(env.Ctx, renewed.Token); err != nil {
		t.Fatalf("renewed token should still be valid on day 10: %v", err)
	}
	if env.Mail.sentTo(rev1.Email) != 2 {
		t.Fatalf("expected two mails to the reviewer")
	}
}

func TestNotificationFailureKeepsInvitation(t *testing.T) {
	env := newTestEnv(t)
	_, rv := deskAccepted(t, env)
	env.Mail.err = fault.Transient("send mail", errors.New("connection refused"))
	inv := invite(t, env, rv, rev1)
	if inv.NotifiedAt != nil {
		t.Fatalf("notified_at must stay empty when delivery failed")
	}
	stored, err := env.Engine.Repo.GetInvitation(env.Ctx, nil, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.InvitationPending || stored.NotifiedAt != nil {
		t.Fatalf("invitation should be persisted pending without notified_at: %+v", stored)
	}
}

func TestSendRemindersOnce(t *testing.T) {
	env := newTestEnv(t)
	_, rv := deskAccepted(t, env)
	inv := invite(t, env, rv, rev1)
	accepted := invite(t, env, rv, rev2)
	if _, err := env.Engine.RespondByToken(env.Ctx, accepted.Token, engine.InvitationResponse{Accept: true, ConflictOfInterest: "none"}); err != nil {
		t.Fatal(err)
	}

	early, err := env.at(24*time.Hour).Engine.SendReminders(env.Ctx, editor, 0)
	if err != nil || len(early) != 0 {
		t.Fatalf("nothing is due after one day: %v %+v", err, early)
	}
	later := env.at(4 * 24 * time.Hour)
	sent, err := later.Engine.SendReminders(env.Ctx, editor, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 || sent[0].InvitationID != inv.ID || !sent[0].Delivered {
		t.Fatalf("expected one delivered reminder, got %+v", sent)
	}
	again, err := later.Engine.SendReminders(env.Ctx, editor, 0)
	if err != nil || len(again) != 0 {
		t.Fatalf("reminders are sent once: %v %+v", err, again)
	}
}

func TestRecordScoreRequiresAcceptedInvitation(t *testing.T) {
	env := newTestEnv(t)
	_, rv := deskAccepted(t, env)
	invite(t, env, rv, rev1)
	_, err := env.Engine.RecordScore(env.Ctx, rev1, engine.ScoreOptions{ReviewID: rv.ID, Role: "reviewer1", Scores: fullScores(rubric.RoleReviewer1, 1)})
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("pending invitation should not allow scoring, got %v", err)
	}
	_, err = env.Engine.RecordScore(env.Ctx, rev1, engine.ScoreOptions{ReviewID: rv.ID, Role: "editor", Scores: fullScores(rubric.RoleEditor, 1)})
	if !errors.As(err, &fe) {
		t.Fatalf("reviewers cannot record the editor scorecard, got %v", err)
	}
	_, err = env.Engine.RecordScore(env.Ctx, chief, engine.ScoreOptions{ReviewID: rv.ID, Role: "reviewer1", Scores: map[string]int{"gramatica": 3}})
	if !fault.IsValidation(err) {
		t.Fatalf("out of range scores should fail validation, got %v", err)
	}
}

func TestRepairRestoresLostSubmissionWrite(t *testing.T) {
	env := newTestEnv(t)
	sub, rv := reviewsCompleted(t, env)
	dec, err := env.Engine.RecordDecision(env.Ctx, editor, engine.DecisionOptions{ReviewID: rv.ID, Decision: domain.DecisionRevisionRequired})
	if err != nil {
		t.Fatal(err)
	}
	// simulate a crash after the review write: the submission never moved and
	// the next round was never opened
	if _, err := env.Engine.DB.Exec(`DELETE FROM editorial_reviews WHERE id=?`, dec.NextReview.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.DB.Exec(`UPDATE submissions SET status='reviews_completed', round=1 WHERE id=?`, sub.ID); err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.RepairSubmission(env.Ctx, chief, sub.ID)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !res.Changed || res.Submission.Status != domain.StatusMajorRevision || res.Submission.Round != 2 {
		t.Fatalf("unexpected repair result: %+v", res)
	}
	if res.OpenedReview == nil || res.OpenedReview.Round != 2 {
		t.Fatalf("repair should open the round-2 review: %+v", res.OpenedReview)
	}
	res, err = env.Engine.RepairSubmission(env.Ctx, chief, sub.ID)
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if res.Changed || res.OpenedReview != nil {
		t.Fatalf("repair must be idempotent: %+v", res)
	}
	if _, err := env.Engine.RepairSubmission(env.Ctx, editor, sub.ID); err == nil {
		t.Fatalf("editors lack the repair permission")
	}
}

func TestCreateSubmissionValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name    string
		authors []domain.Author
	}{
		{"no authors", nil},
		{"bad email", []domain.Author{{Name: "Ana", Email: "ana"}}},
		{"minor without guardian", []domain.Author{{Name: "Luis", Email: "luis@school.test", IsMinor: true, GuardianConsent: true}}},
		{"minor without consent", []domain.Author{{Name: "Luis", Email: "luis@school.test", IsMinor: true, GuardianName: "Marta"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.CreateSubmission(env.Ctx, author, engine.SubmissionCreateOptions{Title: "T", Authors: tc.authors})
			if !fault.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	sub := createSubmission(t, env)
	if sub.Status != domain.StatusSubmitted || sub.Round != 0 || sub.Authors[0].Email != "ana@school.test" {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if _, err := env.Engine.CreateSubmission(env.Ctx, rev1, engine.SubmissionCreateOptions{Title: "T", Authors: sub.Authors}); err == nil {
		t.Fatalf("reviewers cannot submit")
	}
}

func TestListSubmissionsScopesAuthors(t *testing.T) {
	env := newTestEnv(t)
	createSubmission(t, env)
	other := auth.Principal{ActorID: "author-2", Roles: []string{"author"}}
	mine, err := env.Engine.ListSubmissions(env.Ctx, other, repo.SubmissionFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 0 {
		t.Fatalf("authors only see their own submissions, got %d", len(mine))
	}
	all, err := env.Engine.ListSubmissions(env.Ctx, editor, repo.SubmissionFilters{Status: "submitted"})
	if err != nil || len(all) != 1 {
		t.Fatalf("editor listing: %v %d", err, len(all))
	}
}

func TestBootstrapGrantsFirstActorOnly(t *testing.T) {
	env := newTestEnv(t)
	ok, err := env.Engine.Bootstrap(env.Ctx, "founder", "founder@journal.test")
	if err != nil || !ok {
		t.Fatalf("first bootstrap: %v %v", ok, err)
	}
	ok, err = env.Engine.Bootstrap(env.Ctx, "intruder", "")
	if err != nil || ok {
		t.Fatalf("second bootstrap must not grant: %v %v", ok, err)
	}
	p, err := env.Engine.Principal(env.Ctx, "founder", "founder@journal.test")
	if err != nil {
		t.Fatal(err)
	}
	if !p.HasRole(engine.BootstrapRole) {
		t.Fatalf("founder should be %s: %+v", engine.BootstrapRole, p)
	}
	if err := env.Engine.GrantRole(env.Ctx, p, "ed-9", "", "editor"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := env.Engine.GrantRole(env.Ctx, p, "ed-9", "", "janitor"); !fault.IsValidation(err) {
		t.Fatalf("unknown role should fail validation, got %v", err)
	}
	key, raw, err := env.Engine.CreateAPIKey(env.Ctx, p, "ed-9", "ci")
	if err != nil {
		t.Fatal(err)
	}
	actor, err := env.Engine.ActorForAPIKey(env.Ctx, raw)
	if err != nil || actor != "ed-9" || key.KeyHash == raw {
		t.Fatalf("api key lookup: %v %s", err, actor)
	}
	evts, err := env.Engine.ListEvents(env.Ctx, p, repo.EventFilters{Type: "role.granted"})
	if err != nil || len(evts) != 2 {
		t.Fatalf("expected two role.granted events: %v %d", err, len(evts))
	}
}

func TestAuthorViewHidesEditorialNotes(t *testing.T) {
	env := newTestEnv(t)
	sub, rv := reviewsCompleted(t, env)
	if _, err := env.Engine.RecordDecision(env.Ctx, editor, engine.DecisionOptions{
		ReviewID:         rv.ID,
		Decision:         domain.DecisionReject,
		FeedbackToAuthor: "Gracias por participar",
		InternalComments: "argumento débil",
	}); err != nil {
		t.Fatal(err)
	}

	own, err := env.Engine.GetSubmission(env.Ctx, author, sub.ID)
	if err != nil {
		t.Fatalf("owner view: %v", err)
	}
	if len(own.Reviews) != 1 || own.Reviews[0].FeedbackToAuthor != "Gracias por participar" {
		t.Fatalf("owner should see the feedback: %+v", own.Reviews)
	}
	if own.Reviews[0].InternalComments != "" || len(own.Invitations) != 0 {
		t.Fatalf("owner must not see internal comments or reviewers: %+v", own)
	}

	full, err := env.Engine.GetSubmission(env.Ctx, editor, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if full.Reviews[0].InternalComments != "argumento débil" || len(full.Invitations) != 1 {
		t.Fatalf("editor view should be complete: %+v", full)
	}

	stranger := auth.Principal{ActorID: "author-2", Email: "leo@school.test", Roles: []string{"author"}}
	var fe auth.ForbiddenError
	if _, err := env.Engine.GetSubmission(env.Ctx, stranger, sub.ID); !errors.As(err, &fe) {
		t.Fatalf("other authors are forbidden, got %v", err)
	}
}

func TestReviewerFillsOneScorecard(t *testing.T) {
	env := newTestEnv(t)
	_, rv := deskAccepted(t, env)
	for _, p := range []auth.Principal{rev1, rev2} {
		inv := invite(t, env, rv, p)
		if _, err := env.Engine.RespondByToken(env.Ctx, inv.Token, engine.InvitationResponse{Accept: true, ConflictOfInterest: "none"}); err != nil {
			t.Fatalf("accept: %v", err)
		}
	}
	score := func(p auth.Principal, role rubric.Role, level int) (engine.ScoreResult, error) {
		return env.Engine.RecordScore(env.Ctx, p, engine.ScoreOptions{ReviewID: rv.ID, Role: string(role), Scores: fullScores(role, level)})
	}

	if _, err := score(rev1, rubric.RoleReviewer1, 1); err != nil {
		t.Fatalf("reviewer1: %v", err)
	}
	if _, err := score(rev1, rubric.RoleReviewer2, 1); !fault.IsConflict(err) {
		t.Fatalf("one reviewer cannot fill both scorecards, got %v", err)
	}
	var fe auth.ForbiddenError
	if _, err := score(rev2, rubric.RoleReviewer1, 0); !errors.As(err, &fe) {
		t.Fatalf("overwriting another reviewer's scorecard should be forbidden, got %v", err)
	}
	if _, err := score(rev1, rubric.RoleReviewer1, 2); err != nil {
		t.Fatalf("reviewers may revise their own scorecard: %v", err)
	}
	sub, err := env.Engine.Repo.GetSubmission(env.Ctx, nil, rv.SubmissionID)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != domain.StatusInReview {
		t.Fatalf("one reviewer must not close peer review, status %s", sub.Status)
	}

	res, err := score(rev2, rubric.RoleReviewer2, 2)
	if err != nil || !res.ReviewsCompleted {
		t.Fatalf("second reviewer should complete reviews: %v %+v", err, res)
	}
	card, err := env.Engine.Scorecard(env.Ctx, editor, rv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if card.Scores[string(rubric.RoleReviewer1)].ScorerID != rev1.ActorID || card.Scores[string(rubric.RoleReviewer1)].Total != 8 {
		t.Fatalf("reviewer1 scorecard = %+v", card.Scores[string(rubric.RoleReviewer1)])
	}
}

func TestConcurrentDecisionsOneWins(t *testing.T) {
	env := newTestEnv(t)
	_, rv := reviewsCompleted(t, env)

	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, d := range []struct {
		p        auth.Principal
		decision domain.Decision
	}{{editor, domain.DecisionAccept}, {chief, domain.DecisionReject}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = env.Engine.RecordDecision(env.Ctx, d.p, engine.DecisionOptions{ReviewID: rv.ID, Decision: d.decision})
		}()
	}
	close(start)
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case fault.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Fatalf("expected one decision and one conflict, got %v", errs)
	}
	stored, err := env.Engine.Repo.GetReview(env.Ctx, nil, rv.ID)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := env.Engine.Repo.GetSubmission(env.Ctx, nil, rv.SubmissionID)
	if err != nil {
		t.Fatal(err)
	}
	want := domain.StatusAccepted
	if *stored.Decision == domain.DecisionReject {
		want = domain.StatusRejected
	}
	if sub.Status != want {
		t.Fatalf("submission %s does not follow decision %s", sub.Status, *stored.Decision)
	}
}

func TestInvitationDeclineIsFinal(t *testing.T) {
	env := newTestEnv(t)
	_, rv := deskAccepted(t, env)
	inv := invite(t, env, rv, rev1)

	got, err := env.Engine.RespondByToken(env.Ctx, inv.Token, engine.InvitationResponse{Accept: false})
	if err != nil || got.Status != domain.InvitationDeclined {
		t.Fatalf("decline: %v %+v", err, got)
	}
	for _, resp := range []engine.InvitationResponse{
		{Accept: true, ConflictOfInterest: "none"},
		{Accept: true},
		{Accept: false},
	} {
		_, err := env.Engine.RespondByToken(env.Ctx, inv.Token, resp)
		if !fault.IsConflict(err) || err.Error() != "invitation already processed" {
			t.Fatalf("response %+v after decline: expected invitation already processed, got %v", resp, err)
		}
	}
	if _, err := env.Engine.RespondToInvitation(env.Ctx, editor, inv.ID, engine.InvitationResponse{Accept: true, ConflictOfInterest: "none"}); !fault.IsConflict(err) {
		t.Fatalf("editor response after decline: %v", err)
	}
	stored, err := env.Engine.Repo.GetInvitation(env.Ctx, nil, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.InvitationDeclined {
		t.Fatalf("decline must stand, got %s", stored.Status)
	}
}
