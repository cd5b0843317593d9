package reconcile

import (
	"sort"
	"strings"

	"folio/internal/domain"
)

// Canonical field names for incoming-submission rows.
const (
	FieldAuthorName        = "author_name"
	FieldAuthorEmail       = "author_email"
	FieldAuthorInstitution = "author_institution"
	FieldTitle             = "title"
	FieldAbstract          = "abstract"
	FieldSubjectArea       = "subject_area"
	FieldLink              = "link"
	FieldSubmittedAt       = "submitted_at"
)

// Canonical field names for assignment rows.
const (
	FieldArticleName = "article_name"
	FieldReviewer1   = "reviewer1"
	FieldReviewer2   = "reviewer2"
	FieldEditor      = "editor"
	FieldDeadline    = "deadline"
	FieldFeedback1   = "feedback1"
	FieldFeedback2   = "feedback2"
	FieldFeedback3   = "feedback3"
	FieldReport1     = "report1"
	FieldReport2     = "report2"
	FieldReport3     = "report3"
	FieldVote1       = "vote1"
	FieldVote2       = "vote2"
	FieldVote3       = "vote3"
)

// Schema maps normalized column headers to canonical field names. Headers are
// compared after Key, so "Correo Electrónico" and "correo electronico" hit the
// same entry.
type Schema map[string]string

// DefaultSchema covers the Spanish and English headers the journal's forms and
// sheets have used.
func DefaultSchema() Schema {
	s := Schema{}
	add := func(field string, headers ...string) {
		for _, h := range headers {
			s[Key(h)] = field
		}
	}
	add(FieldAuthorName, "author", "author name", "name", "nombre", "nombre completo", "autor", "nombre del autor")
	add(FieldAuthorEmail, "email", "e-mail", "author email", "correo", "correo electrónico", "email address")
	add(FieldAuthorInstitution, "institution", "school", "institución", "colegio", "universidad")
	add(FieldTitle, "title", "article title", "título", "título del artículo", "titulo articulo")
	add(FieldAbstract, "abstract", "summary", "resumen")
	add(FieldSubjectArea, "subject area", "area", "área temática", "tema")
	add(FieldLink, "link", "url", "enlace", "documento")
	add(FieldSubmittedAt, "timestamp", "submitted at", "marca temporal", "fecha de envío")
	add(FieldArticleName, "article name", "article", "nombre artículo", "nombre del artículo", "artículo")
	add(FieldReviewer1, "reviewer 1", "reviewer1", "revisor 1", "revisor1")
	add(FieldReviewer2, "reviewer 2", "reviewer2", "revisor 2", "revisor2")
	add(FieldEditor, "editor", "editor asignado")
	add(FieldDeadline, "deadline", "due date", "plazo", "fecha límite")
	add(FieldFeedback1, "feedback 1", "feedback1", "retroalimentación 1")
	add(FieldFeedback2, "feedback 2", "feedback2", "retroalimentación 2")
	add(FieldFeedback3, "feedback 3", "feedback3", "retroalimentación 3")
	add(FieldReport1, "report 1", "informe 1")
	add(FieldReport2, "report 2", "informe 2")
	add(FieldReport3, "report 3", "informe 3")
	add(FieldVote1, "vote 1", "voto 1")
	add(FieldVote2, "vote 2", "voto 2")
	add(FieldVote3, "vote 3", "voto 3")
	return s
}

// With returns a copy of s extended by overrides (header -> canonical field).
func (s Schema) With(overrides map[string]string) Schema {
	out := make(Schema, len(s)+len(overrides))
	for k, v := range s {
		out[k] = v
	}
	for h, f := range overrides {
		out[Key(h)] = f
	}
	return out
}

// Normalize renames a raw row's keys to canonical fields and strips injection
// from every value. Unknown headers are kept under their normalized form. When
// two headers map to the same field the non-empty value of the header that
// sorts first wins.
func (s Schema) Normalize(row map[string]string) map[string]string {
	headers := make([]string, 0, len(row))
	for h := range row {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	out := make(map[string]string, len(row))
	for _, header := range headers {
		value := row[header]
		k := Key(header)
		if f, ok := s[k]; ok {
			k = f
		}
		v := StripInjection(value)
		if existing, ok := out[k]; ok && existing != "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Incoming is a canonical incoming-submission row.
type Incoming struct {
	AuthorName        string            `json:"author_name"`
	AuthorEmail       string            `json:"author_email,omitempty"`
	AuthorInstitution string            `json:"author_institution,omitempty"`
	Title             string            `json:"title"`
	Fields            map[string]string `json:"fields"`
}

// Incoming converts a raw form row.
func (s Schema) Incoming(row map[string]string) Incoming {
	f := s.Normalize(row)
	return Incoming{
		AuthorName:        f[FieldAuthorName],
		AuthorEmail:       strings.ToLower(f[FieldAuthorEmail]),
		AuthorInstitution: f[FieldAuthorInstitution],
		Title:             f[FieldTitle],
		Fields:            f,
	}
}

// AssignmentRecords converts assignment rows, skipping blank ones.
func (s Schema) AssignmentRecords(rows []map[string]string) []domain.AssignmentRecord {
	out := make([]domain.AssignmentRecord, 0, len(rows))
	for _, row := range rows {
		rec := s.Assignment(row)
		if rec.ArticleName == "" && rec.AuthorName == "" {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Assignment converts a raw assignment-sheet row.
func (s Schema) Assignment(row map[string]string) domain.AssignmentRecord {
	f := s.Normalize(row)
	return domain.AssignmentRecord{
		ArticleName: f[FieldArticleName],
		AuthorName:  f[FieldAuthorName],
		Link:        f[FieldLink],
		Reviewer1:   f[FieldReviewer1],
		Reviewer2:   f[FieldReviewer2],
		Editor:      f[FieldEditor],
		Deadline:    f[FieldDeadline],
		Slots: [3]domain.AssignmentSlot{
			{Feedback: f[FieldFeedback1], Report: f[FieldReport1], Vote: f[FieldVote1]},
			{Feedback: f[FieldFeedback2], Report: f[FieldReport2], Vote: f[FieldVote2]},
			{Feedback: f[FieldFeedback3], Report: f[FieldReport3], Vote: f[FieldVote3]},
		},
	}
}
