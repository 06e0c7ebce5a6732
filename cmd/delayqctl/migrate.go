package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/delayq/migrations"
)

func newMigrateCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := migrations.Up(cmd.Context(), s.db.GetDB().DB, s.logger.Component("migrations")); err != nil {
				return err
			}
			pterm.Success.Println("Schema is up to date")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the state of every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := migrations.Status(cmd.Context(), s.db.GetDB().DB)
			if err != nil {
				return err
			}
			return pterm.DefaultTable.WithHasHeader().WithData(migrationRows(statuses)).Render()
		},
	})

	return cmd
}
