package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"folio/internal/domain"
	"folio/internal/engine"
	"folio/internal/engine/auth"
	"folio/internal/reconcile"
	"folio/internal/rubric"
)

func scoreCmd() *cobra.Command {
	var opts engine.ScoreOptions
	cmd := &cobra.Command{
		Use:   "score <review-id> <reviewer1|reviewer2|editor>",
		Short: "Record a rubric scorecard for a review round",
		Example: "  folio score rv-1 reviewer1 --score gramatica=2 --score claridad=1 ...\n" +
			"  folio rubric   # lists the criteria keys per role",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ReviewID, opts.Role = args[0], args[1]
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				res, err := e.RecordScore(ctx, p, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %d/%d (%s%%)\n", res.Summary.Role, res.Summary.Total, res.Summary.Max, res.Summary.Percent().StringFixed(1))
				if res.ReviewsCompleted {
					fmt.Println("both reviewer scorecards recorded; peer review completed")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringToIntVar(&opts.Scores, "score", nil, "criterion=level, level 0..2 (repeatable)")
	return cmd
}

func decideCmd() *cobra.Command {
	var opts engine.DecisionOptions
	var decision string
	cmd := &cobra.Command{
		Use:   "decide <review-id>",
		Short: "Close a review round; without --decision the rubric recommendation is used",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ReviewID = args[0]
			opts.Decision = domain.Decision(strings.TrimSpace(decision))
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				res, err := e.RecordDecision(ctx, p, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.Recommendation != nil {
					fmt.Printf("rubric: %s%% overall, %s\n", res.Recommendation.OverallPercent.StringFixed(1), res.Recommendation.Recommendation)
				}
				fmt.Printf("%s is %s (round %d)\n", res.Submission.ID, res.Submission.Status, res.Submission.Round)
				if res.NextReview != nil {
					fmt.Printf("round %d opened as review %s\n", res.NextReview.Round, res.NextReview.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "accept, minor-revision, revision-required or reject")
	cmd.Flags().StringVar(&opts.FeedbackToAuthor, "feedback", "", "feedback sent to the author")
	cmd.Flags().StringVar(&opts.InternalComments, "internal", "", "comments kept internal")
	return cmd
}

func rubricCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rubric",
		Short: "Print the scoring criteria per role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				out := map[string][]rubric.Criterion{}
				for _, role := range rubric.Roles() {
					out[string(role)] = rubric.Criteria(role)
				}
				return printJSON(out)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Role", "Key", "Criterion", "0", "1", "2"})
			for _, role := range rubric.Roles() {
				for _, c := range rubric.Criteria(role) {
					tw.AppendRow(table.Row{role, c.Key, c.Label, c.Levels[0], c.Levels[1], c.Levels[2]})
				}
				tw.AppendSeparator()
			}
			tw.Render()
			return nil
		},
	}
}

func queueCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Reconcile the incoming sheet with the assignment sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				res, err := e.WorkQueue(ctx, p)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printQueue(res, all)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "fields", false, "include reviewer and deadline columns")
	return cmd
}

func printQueue(res reconcile.Result, wide bool) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	header := table.Row{"Author", "Article", "Match"}
	if wide {
		header = append(header, "Reviewer 1", "Reviewer 2", "Editor", "Deadline")
	}
	tw.AppendHeader(header)
	for _, item := range res.Items {
		for i, a := range item.Articles {
			author := ""
			if i == 0 {
				author = item.AuthorName
			}
			row := table.Row{author, a.Title, a.Match}
			if wide {
				if as := a.Assignment; as != nil {
					row = append(row, as.Reviewer1, as.Reviewer2, as.Editor, as.Deadline)
				} else {
					row = append(row, "", "", "", "")
				}
			}
			tw.AppendRow(row)
		}
	}
	s := res.Stats
	tw.AppendFooter(table.Row{fmt.Sprintf("%d incoming, %d assignments", s.Incoming, s.Assignments), fmt.Sprintf("%d exact, %d fuzzy", s.Exact, s.Fuzzy), fmt.Sprintf("%d hidden", s.Hidden)})
	tw.Render()
}
