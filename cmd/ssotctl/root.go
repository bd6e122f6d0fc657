package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"ssot/pkg/requestcontext"
)

type commandContext struct {
	databaseURL string
	actor       string
	open        openFunc
}

// withBackend opens the backend for one command run with the operator in
// the context.
func (c *commandContext) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *backend) error) error {
	ctx := requestcontext.WithActor(cmd.Context(), c.actor)
	b, err := c.open(ctx, c.databaseURL)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

func newRootCommand(open openFunc) *cobra.Command {
	c := &commandContext{open: open}

	rootCmd := &cobra.Command{
		Use:           "ssotctl",
		Short:         "Operate the identity resolution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	rootCmd.PersistentFlags().StringVar(&c.actor, "actor", defaultActor(), "Operator recorded in the audit trail")

	rootCmd.AddCommand(newMigrateCommand(c))
	rootCmd.AddCommand(newCalibrationCommand(c))
	rootCmd.AddCommand(newQueueCommand(c))
	rootCmd.AddCommand(newMastersCommand(c))
	rootCmd.AddCommand(newAuditCommand(c))
	rootCmd.AddCommand(newAdminTokenCommand())
	return rootCmd
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "ssotctl"
}
