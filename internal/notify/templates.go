package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// InvitationNotice is the payload for an invitation or its reminder.
type InvitationNotice struct {
	To              string
	ReviewerName    string
	SubmissionTitle string
	Abstract        string
	RespondURL      string
	ExpiresAt       string
	Journal         string
	Locale          string
	Reminder        bool
}

// DecisionNotice tells an author the outcome of a review round.
type DecisionNotice struct {
	To              string
	AuthorName      string
	SubmissionTitle string
	Decision        string
	Feedback        string
	Journal         string
	Locale          string
}

var templates = template.Must(template.New("notify").Parse(`
{{define "invitation.en"}}<p>Dear {{.ReviewerName}},</p>
<p>{{if .Reminder}}This is a reminder that you have been{{else}}You have been{{end}} invited to review <strong>{{.SubmissionTitle}}</strong> for {{.Journal}}.</p>
{{if .Abstract}}<blockquote>{{.Abstract}}</blockquote>{{end}}
<p>Please accept or decline before {{.ExpiresAt}}: <a href="{{.RespondURL}}">{{.RespondURL}}</a></p>{{end}}
{{define "invitation.es"}}<p>Estimado/a {{.ReviewerName}}:</p>
<p>{{if .Reminder}}Le recordamos que ha sido{{else}}Ha sido{{end}} invitado/a a revisar <strong>{{.SubmissionTitle}}</strong> para {{.Journal}}.</p>
{{if .Abstract}}<blockquote>{{.Abstract}}</blockquote>{{end}}
<p>Por favor acepte o rechace antes del {{.ExpiresAt}}: <a href="{{.RespondURL}}">{{.RespondURL}}</a></p>{{end}}
{{define "decision.en"}}<p>Dear {{.AuthorName}},</p>
<p>The editorial board of {{.Journal}} has reached a decision on <strong>{{.SubmissionTitle}}</strong>: {{.Decision}}.</p>
{{if .Feedback}}<p>{{.Feedback}}</p>{{end}}{{end}}
{{define "decision.es"}}<p>Estimado/a {{.AuthorName}}:</p>
<p>El comité editorial de {{.Journal}} ha tomado una decisión sobre <strong>{{.SubmissionTitle}}</strong>: {{.Decision}}.</p>
{{if .Feedback}}<p>{{.Feedback}}</p>{{end}}{{end}}
`))

func locale(l string) string {
	if strings.HasPrefix(strings.ToLower(l), "es") {
		return "es"
	}
	return "en"
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func RenderInvitation(n InvitationNotice) (Message, error) {
	loc := locale(n.Locale)
	body, err := render("invitation."+loc, n)
	if err != nil {
		return Message{}, err
	}
	var subject string
	switch {
	case loc == "es" && n.Reminder:
		subject = "Recordatorio: invitación a revisar \"" + n.SubmissionTitle + "\""
	case loc == "es":
		subject = "Invitación a revisar \"" + n.SubmissionTitle + "\""
	case n.Reminder:
		subject = "Reminder: invitation to review \"" + n.SubmissionTitle + "\""
	default:
		subject = "Invitation to review \"" + n.SubmissionTitle + "\""
	}
	return Message{To: n.To, Subject: subject, HTMLBody: body}, nil
}

func RenderDecision(n DecisionNotice) (Message, error) {
	loc := locale(n.Locale)
	body, err := render("decision."+loc, n)
	if err != nil {
		return Message{}, err
	}
	subject := "Decision on \"" + n.SubmissionTitle + "\""
	if loc == "es" {
		subject = "Decisión sobre \"" + n.SubmissionTitle + "\""
	}
	return Message{To: n.To, Subject: subject, HTMLBody: body}, nil
}
