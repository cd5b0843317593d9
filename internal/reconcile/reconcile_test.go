package reconcile

import (
	"context"
	"errors"
	"testing"

	"folio/internal/domain"
)

func TestKeyNormalizes(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Ana   Pérez ", "ana perez"},
		{"Efectos del Cambio Climático", "efectos del cambio climatico"},
		{"<script>alert(1)</script>Título", "titulo"},
		{"<b onclick=\"x()\">Hola</b>", "hola"},
		{"JavaScript:void(0) Mundo", "void(0) mundo"},
		{"<img src=x onerror=alert(1)>Niño del campo", "nino del campo"},
	}
	for _, tc := range cases {
		if got := Key(tc.in); got != tc.want {
			t.Fatalf("Key(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFuzzyMatchScenario(t *testing.T) {
	schema := DefaultSchema()
	incoming := []Incoming{schema.Incoming(map[string]string{"author": "Ana Pérez", "title": "Efectos del Cambio Climático"})}
	assignments := schema.AssignmentRecords([]map[string]string{{
		"Autor":           "ana perez",
		"Nombre Artículo": "efectos del cambio climatico en chile",
		"Feedback 3":      "",
	}})
	items, stats := Reconcile(incoming, assignments)
	if len(items) != 1 || len(items[0].Articles) != 1 {
		t.Fatalf("expected one author with one article, got %+v", items)
	}
	art := items[0].Articles[0]
	if art.Assignment == nil || art.Match != MatchFuzzy || art.IsCompleted {
		t.Fatalf("expected open fuzzy match, got %+v", art)
	}
	if stats.Fuzzy != 1 || stats.Exact != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestExactMatchBeatsFuzzy(t *testing.T) {
	incoming := []Incoming{{AuthorName: "Luis Soto", Title: "Mareas"}}
	assignments := []domain.AssignmentRecord{
		{AuthorName: "Luis Soto", ArticleName: "Mareas del sur", Reviewer1: "fuzzy"},
		{AuthorName: "luis soto", ArticleName: "MAREAS", Reviewer1: "exact"},
	}
	items, _ := Reconcile(incoming, assignments)
	art := items[0].Articles[0]
	if art.Match != MatchExact || art.Assignment.Reviewer1 != "exact" {
		t.Fatalf("expected exact match, got %+v", art)
	}
}

func TestFuzzyTieBreakPrefersClosestTitle(t *testing.T) {
	incoming := []Incoming{{AuthorName: "Eva", Title: "agua"}}
	assignments := []domain.AssignmentRecord{
		{AuthorName: "Eva", ArticleName: "el agua en los andes del norte", Reviewer1: "far"},
		{AuthorName: "Eva", ArticleName: "agua dulce", Reviewer1: "near"},
		{AuthorName: "Eva", ArticleName: "agua salda", Reviewer1: "near-later"},
	}
	items, _ := Reconcile(incoming, assignments)
	if got := items[0].Articles[0].Assignment.Reviewer1; got != "near" {
		t.Fatalf("expected closest earliest candidate, got %s", got)
	}
}

func TestMatchingIsConservative(t *testing.T) {
	incoming := []Incoming{
		{AuthorName: "Ana", Title: "Volcanes"},
		{AuthorName: "Ana", Title: ""},
	}
	assignments := []domain.AssignmentRecord{
		{AuthorName: "Beto", ArticleName: "Volcanes"},
		{AuthorName: "Ana", ArticleName: "Glaciares"},
	}
	items, stats := Reconcile(incoming, assignments)
	for _, art := range items[0].Articles {
		if art.Assignment != nil {
			t.Fatalf("expected no match for %+v", art)
		}
	}
	if stats.Exact+stats.Fuzzy != 0 {
		t.Fatalf("unexpected matches %+v", stats)
	}
}

func TestCompletedWorkIsHidden(t *testing.T) {
	incoming := []Incoming{
		{AuthorName: "Ana", Title: "Uno"},
		{AuthorName: "Ana", Title: "Dos"},
		{AuthorName: "Beto", Title: "Tres"},
		{AuthorName: "Carla", Title: "Cuatro"},
	}
	done := [3]domain.AssignmentSlot{{Feedback: "ok"}, {Feedback: "ok"}, {Feedback: "final"}}
	assignments := []domain.AssignmentRecord{
		{AuthorName: "Ana", ArticleName: "Uno", Slots: done},
		{AuthorName: "Ana", ArticleName: "Dos"},
		{AuthorName: "Beto", ArticleName: "Tres", Slots: done},
	}
	items, stats := Reconcile(incoming, assignments)
	if len(items) != 2 {
		t.Fatalf("expected Ana and Carla, got %+v", items)
	}
	if items[0].AuthorName != "Ana" || len(items[0].Articles) != 1 || items[0].Articles[0].Title != "Dos" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].AuthorName != "Carla" || items[1].Articles[0].Assignment != nil {
		t.Fatalf("unexpected second item %+v", items[1])
	}
	if stats.Hidden != 2 {
		t.Fatalf("expected 2 hidden, got %d", stats.Hidden)
	}
}

func TestGroupingKeepsFirstSeenMetadata(t *testing.T) {
	incoming := []Incoming{
		{AuthorName: "Ana Pérez", AuthorEmail: "ana@a.cl", AuthorInstitution: "Liceo 1", Title: "A"},
		{AuthorName: "ana perez", AuthorEmail: "other@b.cl", AuthorInstitution: "Liceo 2", Title: "B"},
		{AuthorName: "  ", Title: "orphan"},
	}
	items, stats := Reconcile(incoming, nil)
	if len(items) != 1 || len(items[0].Articles) != 2 {
		t.Fatalf("expected single group, got %+v", items)
	}
	if items[0].AuthorEmail != "ana@a.cl" || items[0].AuthorInstitution != "Liceo 1" {
		t.Fatalf("expected first-seen metadata, got %+v", items[0])
	}
	if stats.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", stats.Skipped)
	}
}

type stubFetcher struct {
	rows []map[string]string
	err  error
}

func (s stubFetcher) FetchRows(context.Context, string) ([]map[string]string, error) {
	return s.rows, s.err
}

func TestServiceReportsFetchFailure(t *testing.T) {
	svc := &Service{
		Incoming:    stubFetcher{rows: []map[string]string{{"author": "Ana", "title": "Uno"}}},
		Assignments: stubFetcher{err: errors.New("503")},
	}
	_, err := svc.WorkQueue(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Source != SourceAssignments {
		t.Fatalf("expected assignments fetch error, got %v", err)
	}
}

func TestServiceEmptyIsNotAnError(t *testing.T) {
	svc := &Service{Incoming: stubFetcher{}, Assignments: stubFetcher{}}
	res, err := svc.WorkQueue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 0 {
		t.Fatalf("expected empty queue, got %+v", res.Items)
	}
}

func TestSchemaOverrides(t *testing.T) {
	schema := DefaultSchema().With(map[string]string{"Nombre Estudiante": FieldAuthorName})
	in := schema.Incoming(map[string]string{"Nombre Estudiante": "Ana", "Título": "<i>Uno</i>", "Correo": "ANA@X.CL"})
	if in.AuthorName != "Ana" || in.Title != "Uno" || in.AuthorEmail != "ana@x.cl" {
		t.Fatalf("unexpected incoming %+v", in)
	}
}
