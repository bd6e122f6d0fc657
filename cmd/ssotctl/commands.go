package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	calmodels "ssot/internal/calibration/models"
	"ssot/internal/matching/scoring"
	"ssot/internal/platform/postgres"
	audit "ssot/pkg/platform/audit"
	"ssot/pkg/platform/secrets"
)

func newMigrateCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				if b.db == nil {
					return fmt.Errorf("migrate needs a database")
				}
				applied, err := postgres.Migrate(ctx, b.db)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", strings.Join(applied, ", "))
				return nil
			})
		},
	}
}

func newCalibrationCommand(c *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibration",
		Short: "Inspect and change m/u calibration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current calibration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				snap, err := b.calibration.Snapshot(ctx)
				if err != nil {
					return err
				}
				printSnapshot(cmd, snap)
				return nil
			})
		},
	}

	var confirm bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				snap, err := b.calibration.InitializeDefaults(ctx, confirm)
				if err != nil {
					return err
				}
				printSnapshot(cmd, snap)
				return nil
			})
		},
	}
	initCmd.Flags().BoolVar(&confirm, "confirm", false, "Overwrite existing parameters")

	set := &cobra.Command{
		Use:   "set FIELD M U",
		Short: "Set the m/u pair of one field",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("m: %w", err)
			}
			u, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("u: %w", err)
			}
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				snap, err := b.calibration.UpdateParameter(ctx, args[0], m, u)
				if err != nil {
					return err
				}
				printSnapshot(cmd, snap)
				return nil
			})
		},
	}

	cmd.AddCommand(show, initCmd, set)
	return cmd
}

func printSnapshot(cmd *cobra.Command, snap *calmodels.Snapshot) {
	out := cmd.OutOrStdout()
	if snap.Empty() {
		fmt.Fprintln(out, "calibration is empty; run `ssotctl calibration init`")
		return
	}
	rows := make([][]string, 0, len(snap.Parameters()))
	for _, p := range snap.Parameters() {
		sp := scoring.Parameter{M: p.M, U: p.U}
		rows = append(rows, []string{
			string(p.Field),
			formatFloat(p.M),
			formatFloat(p.U),
			fmt.Sprintf("%.3f", sp.AgreeWeight()),
			fmt.Sprintf("%.3f", sp.DisagreeWeight()),
			p.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	fmt.Fprintf(out, "version %d\n", snap.Version())
	fmt.Fprintln(out, renderTable(
		[]string{"Field", "m", "u", "Agree", "Disagree", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))
}

func newQueueCommand(c *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List possible matches awaiting review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				page, err := b.resolution.ReviewQueue(ctx, limit)
				if err != nil {
					return err
				}
				items := page.Items
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "review queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, it := range items {
					masterName := ""
					if it.Master != nil {
						masterName = it.Master.FullName
					}
					rows = append(rows, []string{
						fmt.Sprintf("%.3f", it.Candidate.Score),
						it.Candidate.ID.String(),
						it.Submission.Payload.Record().FullName,
						masterName,
						it.Submission.SubmittedAt.UTC().Format(time.RFC3339),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Score", "Candidate", "Submitted name", "Master name", "Submitted"},
					rows,
					[]columnAlignment{alignRight},
				))
				fmt.Fprintf(cmd.OutOrStdout(), "showing %d of %d pending\n", len(items), page.Total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	return cmd
}

func newMastersCommand(c *commandContext) *cobra.Command {
	var (
		limit int
		query string
	)
	cmd := &cobra.Command{
		Use:   "masters",
		Short: "List master identities by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				masters, err := b.resolution.ListMasters(ctx, query, limit)
				if err != nil {
					return err
				}
				if len(masters) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no master identities found")
					return nil
				}
				rows := make([][]string, 0, len(masters))
				for _, m := range masters {
					verified := "no"
					if m.Verified {
						verified = "yes"
					}
					rows = append(rows, []string{
						m.FullName,
						m.BirthDate,
						m.Region,
						verified,
						m.ID.String(),
						m.UpdatedAt.UTC().Format(time.RFC3339),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Name", "Birth date", "Region", "Verified", "ID", "Updated"},
					rows, nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	cmd.Flags().StringVarP(&query, "name", "n", "", "Only names containing this text")
	return cmd
}

func newAuditCommand(c *commandContext) *cobra.Command {
	var (
		limit      int
		entityType string
		entityID   string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (entityType == "") != (entityID == "") {
				return fmt.Errorf("--entity-type and --entity-id must be given together")
			}
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				var (
					entries []audit.Entry
					err     error
				)
				if entityID != "" {
					entries, err = b.audits.ListByEntity(ctx, audit.EntityType(entityType), entityID)
				} else {
					entries, err = b.audits.ListRecent(ctx, limit)
				}
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.Timestamp.UTC().Format(time.RFC3339),
						e.Actor,
						string(e.Action),
						string(e.EntityType) + "/" + e.EntityID,
						e.RelatedID,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Time", "Actor", "Action", "Entity", "Related"},
					rows, nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "Filter by entity type (with --entity-id)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "Filter by entity id")
	return cmd
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func newAdminTokenCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Issue an operator token and print the hash for ADMIN_API_TOKEN_HASH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issued := token == ""
			if issued {
				var err error
				if token, err = secrets.NewToken(); err != nil {
					return err
				}
			}
			hash, err := secrets.HashToken(token)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if issued {
				fmt.Fprintf(out, "token: %s\n", token)
			}
			fmt.Fprintf(out, "ADMIN_API_TOKEN_HASH=%s\n", hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Hash this token instead of issuing a new one")
	return cmd
}
