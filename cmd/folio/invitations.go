package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"folio/internal/domain"
	"folio/internal/engine"
	"folio/internal/engine/auth"
	"folio/internal/repo"
)

func inviteCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "invite", Short: "Invite reviewers and track their answers"}
	cmd.AddCommand(inviteSendCmd())
	cmd.AddCommand(inviteListCmd())
	cmd.AddCommand(inviteRespondCmd())
	cmd.AddCommand(inviteResendCmd())
	cmd.AddCommand(inviteRemindCmd())
	return cmd
}

func inviteSendCmd() *cobra.Command {
	var opts engine.InvitationSendOptions
	cmd := &cobra.Command{
		Use:   "send <review-id>",
		Short: "Invite a reviewer to a review round and e-mail the link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.EditorialReviewID = args[0]
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				inv, err := e.SendInvitation(ctx, p, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(inv)
				}
				fmt.Printf("invited %s <%s> as %s (expires %s)\n", inv.ReviewerName, inv.ReviewerEmail, inv.ID, inv.ExpiresAt)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ReviewerEmail, "reviewer-email", "", "reviewer e-mail")
	cmd.Flags().StringVar(&opts.ReviewerName, "reviewer-name", "", "reviewer name")
	cmd.Flags().IntVar(&opts.ExpiresInDays, "expires-in", 0, "days until the link expires (config default when 0)")
	cmd.Flags().StringVar(&opts.Locale, "locale", "", "e-mail language (es or en)")
	_ = cmd.MarkFlagRequired("reviewer-email")
	_ = cmd.MarkFlagRequired("reviewer-name")
	return cmd
}

func inviteListCmd() *cobra.Command {
	var f repo.InvitationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invitations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				invs, err := e.ListInvitations(ctx, p, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(invs)
				}
				printInvitations(invs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ReviewID, "review", "", "filter by review")
	cmd.Flags().StringVar(&f.SubmissionID, "submission", "", "filter by submission")
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status (pending, accepted, declined)")
	cmd.Flags().StringVar(&f.Email, "reviewer", "", "filter by reviewer e-mail")
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "max rows")
	return cmd
}

func inviteRespondCmd() *cobra.Command {
	var token, coi string
	var decline bool
	cmd := &cobra.Command{
		Use:   "respond [invitation-id]",
		Short: "Accept or decline an invitation by id, or as the reviewer with --token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (token == "") == (len(args) == 0) {
				return fmt.Errorf("pass either an invitation id or --token")
			}
			resp := engine.InvitationResponse{Accept: !decline, ConflictOfInterest: coi}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var inv domain.ReviewerInvitation
				var err error
				if token != "" {
					inv, err = e.RespondByToken(ctx, token, resp)
				} else {
					var p auth.Principal
					p, err = e.Principal(ctx, viper.GetString("actor-id"), viper.GetString("email"))
					if err != nil {
						return err
					}
					inv, err = e.RespondToInvitation(ctx, p, args[0], resp)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(inv)
				}
				fmt.Printf("invitation %s is %s\n", inv.ID, inv.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "invitation token from the e-mail link")
	cmd.Flags().BoolVar(&decline, "decline", false, "decline instead of accepting")
	cmd.Flags().StringVar(&coi, "conflict", "", "conflict of interest statement")
	return cmd
}

func inviteResendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend <invitation-id>",
		Short: "Issue a fresh token and expiry and e-mail the link again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				inv, err := e.ResendInvitation(ctx, p, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(inv)
				}
				fmt.Printf("resent %s to %s (expires %s)\n", inv.ID, inv.ReviewerEmail, inv.ExpiresAt)
				return nil
			})
		},
	}
}

func inviteRemindCmd() *cobra.Command {
	var olderThanDays int
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "E-mail reviewers whose invitations are still pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThanDays < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				reminders, err := e.SendReminders(ctx, p, time.Duration(olderThanDays)*24*time.Hour)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reminders)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Invitation", "To", "Submission", "Expires", "Delivered", "Error"})
				for _, r := range reminders {
					tw.AppendRow(table.Row{r.InvitationID, r.To, r.SubmissionTitle, r.ExpiresAt, r.Delivered, r.Error})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "only invitations sent at least this many days ago (config default when 0)")
	return cmd
}

func printInvitations(invs []domain.ReviewerInvitation) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Invitation", "Submission", "Round", "Reviewer", "Status", "Expires"})
	for _, inv := range invs {
		tw.AppendRow(table.Row{inv.ID, inv.SubmissionID, inv.Round, fmt.Sprintf("%s <%s>", inv.ReviewerName, inv.ReviewerEmail), inv.Status, inv.ExpiresAt})
	}
	tw.Render()
}
