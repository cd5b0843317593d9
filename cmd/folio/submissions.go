package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"folio/internal/domain"
	"folio/internal/engine"
	"folio/internal/engine/auth"
	"folio/internal/repo"
)

func submissionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "submission", Aliases: []string{"sub"}, Short: "Manage manuscripts"}
	cmd.AddCommand(submissionCreateCmd())
	cmd.AddCommand(submissionListCmd())
	cmd.AddCommand(submissionShowCmd())
	cmd.AddCommand(submissionSummaryCmd())
	cmd.AddCommand(submissionDeskReviewCmd())
	cmd.AddCommand(submissionDeskDecisionCmd())
	cmd.AddCommand(submissionResubmitCmd())
	cmd.AddCommand(submissionTransitionCmd("complete-reviews", "Mark peer review as completed", engine.Engine.MarkReviewsCompleted))
	cmd.AddCommand(submissionTransitionCmd("publish", "Publish an accepted manuscript", engine.Engine.Publish))
	cmd.AddCommand(submissionRepairCmd())
	return cmd
}

// parseAuthor reads "Name <email>" with an optional ", Institution" suffix.
func parseAuthor(s string) (domain.Author, error) {
	open, closing := strings.Index(s, "<"), strings.Index(s, ">")
	if open < 0 || closing < open {
		return domain.Author{}, fmt.Errorf("author %q: expected \"Name <email>[, institution]\"", s)
	}
	a := domain.Author{
		Name:  strings.TrimSpace(s[:open]),
		Email: strings.TrimSpace(s[open+1 : closing]),
	}
	if rest := strings.TrimSpace(s[closing+1:]); rest != "" {
		a.Institution = strings.TrimSpace(strings.TrimPrefix(rest, ","))
	}
	return a, nil
}

func parseAuthors(values []string) ([]domain.Author, error) {
	var out []domain.Author
	for _, v := range values {
		a, err := parseAuthor(v)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func submissionCreateCmd() *cobra.Command {
	var opts engine.SubmissionCreateOptions
	var authors []string
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a manuscript",
		Long:  "Register a manuscript from flags, or from a JSON file holding the full request (needed for minors and guardian details).",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &opts); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
			}
			if len(authors) > 0 {
				parsed, err := parseAuthors(authors)
				if err != nil {
					return err
				}
				opts.Authors = parsed
			}
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				sub, err := e.CreateSubmission(ctx, p, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sub)
				}
				fmt.Printf("created %s (%s)\n", sub.ID, sub.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "submission id (generated when empty)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "manuscript title")
	cmd.Flags().StringVar(&opts.Abstract, "abstract", "", "abstract")
	cmd.Flags().StringVar(&opts.SubjectArea, "subject", "", "subject area")
	cmd.Flags().StringVar(&opts.Language, "language", "", "manuscript language")
	cmd.Flags().StringArrayVar(&authors, "author", nil, "author as \"Name <email>[, institution]\" (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON request file")
	return cmd
}

func submissionListCmd() *cobra.Command {
	var status, owner string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List manuscripts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				subs, err := e.ListSubmissions(ctx, p, repo.SubmissionFilters{Status: status, OwnerID: owner, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(subs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Round", "Owner", "Created"})
				for _, s := range subs {
					tw.AppendRow(table.Row{s.ID, s.Title, s.Status, s.Round, s.OwnerID, s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&owner, "owner", "", "filter by owner actor")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func submissionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a manuscript with its review rounds and invitations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				detail, err := e.GetSubmission(ctx, p, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(detail)
				}
				s := detail.Submission
				fmt.Printf("%s  %s\nstatus: %s  round: %d  owner: %s\n", s.ID, s.Title, s.Status, s.Round, s.OwnerID)
				if len(detail.Allowed) > 0 {
					next := make([]string, len(detail.Allowed))
					for i, st := range detail.Allowed {
						next[i] = string(st)
					}
					fmt.Println("next:", strings.Join(next, ", "))
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Review", "Round", "Editor", "Decision", "Completed"})
				for _, r := range detail.Reviews {
					decision, completed := "", ""
					if r.Decision != nil {
						decision = string(*r.Decision)
					}
					if r.CompletedAt != nil {
						completed = *r.CompletedAt
					}
					tw.AppendRow(table.Row{r.ID, r.Round, r.EditorID, decision, completed})
				}
				tw.Render()
				if len(detail.Invitations) > 0 {
					printInvitations(detail.Invitations)
				}
				return nil
			})
		},
	}
}

func submissionSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Count manuscripts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				counts, err := e.StatusSummary(ctx, p)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Count"})
				for _, st := range domain.Statuses() {
					tw.AppendRow(table.Row{st, counts[string(st)]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func submissionDeskReviewCmd() *cobra.Command {
	var editor string
	cmd := &cobra.Command{
		Use:   "desk-review <id>",
		Short: "Open the round-1 desk review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				if editor == "" {
					editor = p.ActorID
				}
				sub, rv, err := e.StartDeskReview(ctx, p, args[0], editor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"submission": sub, "review": rv})
				}
				fmt.Printf("%s is %s; review %s assigned to %s\n", sub.ID, sub.Status, rv.ID, rv.EditorID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&editor, "editor", "", "editor actor id (defaults to the caller)")
	return cmd
}

func submissionDeskDecisionCmd() *cobra.Command {
	var opts engine.DeskDecisionOptions
	var reject bool
	cmd := &cobra.Command{
		Use:   "desk-decision <id>",
		Short: "Accept a manuscript into peer review, or reject it with --reject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SubmissionID = args[0]
			opts.Accept = !reject
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				sub, err := e.RecordDeskDecision(ctx, p, opts)
				if err != nil {
					return err
				}
				return printSubmission(sub)
			})
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "desk-reject the manuscript")
	cmd.Flags().StringVar(&opts.FeedbackToAuthor, "feedback", "", "feedback sent to the author")
	cmd.Flags().StringVar(&opts.InternalComments, "internal", "", "comments kept internal")
	return cmd
}

func submissionResubmitCmd() *cobra.Command {
	var opts engine.RevisionOptions
	var authors []string
	cmd := &cobra.Command{
		Use:   "resubmit <id>",
		Short: "Return a revised manuscript to review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SubmissionID = args[0]
			parsed, err := parseAuthors(authors)
			if err != nil {
				return err
			}
			opts.Authors = parsed
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				sub, err := e.ResubmitRevision(ctx, p, opts)
				if err != nil {
					return err
				}
				return printSubmission(sub)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "revised title")
	cmd.Flags().StringVar(&opts.Abstract, "abstract", "", "revised abstract")
	cmd.Flags().StringArrayVar(&authors, "author", nil, "replacement author list entry (repeatable)")
	return cmd
}

func submissionTransitionCmd(use, short string, fn func(engine.Engine, context.Context, auth.Principal, string) (domain.Submission, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				sub, err := fn(e, ctx, p, args[0])
				if err != nil {
					return err
				}
				return printSubmission(sub)
			})
		},
	}
}

func submissionRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair <id>",
		Short: "Re-derive status and round from the review history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				res, err := e.RepairSubmission(ctx, p, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if !res.Changed {
					fmt.Printf("%s is consistent (%s, round %d)\n", res.Submission.ID, res.Submission.Status, res.Submission.Round)
					return nil
				}
				fmt.Printf("repaired %s: %s, round %d\n", res.Submission.ID, res.Submission.Status, res.Submission.Round)
				if res.OpenedReview != nil {
					fmt.Println("opened review", res.OpenedReview.ID)
				}
				return nil
			})
		},
	}
}

func printSubmission(sub domain.Submission) error {
	if viper.GetBool("json") {
		return printJSON(sub)
	}
	fmt.Printf("%s is %s (round %d)\n", sub.ID, sub.Status, sub.Round)
	return nil
}
