package main

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/partition"
)

func newPartitionsCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "partitions",
		Aliases: []string{"p"},
		Short:   "Manage daily partitions of the jobs table",
	}

	cmd.AddCommand(newEnsureCmd(s))

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the partitions attached to the jobs table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := s.partitionManager().List(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				pterm.Info.Println("No partitions attached")
				return nil
			}
			return pterm.DefaultTable.WithHasHeader().WithData(partitionRows(infos)).Render()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drop <name>",
		Short: "Drop one daily partition and the jobs stored in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dropped, err := s.partitionManager().Drop(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !dropped {
				pterm.Warning.Printfln("Partition %s does not exist", args[0])
				return nil
			}
			pterm.Success.Printfln("Dropped %s", args[0])
			return nil
		},
	})

	return cmd
}

func newEnsureCmd(s *session) *cobra.Command {
	var from, to string
	var days int

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create missing daily partitions",
		Long: `Create the daily partitions of [from, from+days) or [from, to).
Existing partitions are skipped. --from defaults to today (UTC) and --days to
partitions.lookahead_days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := partition.TruncateDay(time.Now())
			if from != "" {
				parsed, err := time.Parse(domain.DayLayout, from)
				if err != nil {
					return errors.Wrapf(err, "invalid --from %q", from)
				}
				start = parsed
			}

			manager := s.partitionManager()

			var report *partition.Report
			var err error
			if to != "" {
				end, perr := time.Parse(domain.DayLayout, to)
				if perr != nil {
					return errors.Wrapf(perr, "invalid --to %q", to)
				}
				report, err = manager.EnsurePartitions(cmd.Context(), start, end)
			} else {
				if days == 0 {
					days = s.cfg.Partitions.LookaheadDays
				}
				report, err = manager.EnsureDailyPartitions(cmd.Context(), start, days)
			}

			if report != nil {
				if rerr := pterm.DefaultTable.WithHasHeader().WithData(reportRows(report)).Render(); rerr != nil {
					return rerr
				}
				pterm.Info.Println(reportSummary(report))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Exclusive last day, YYYY-MM-DD")
	cmd.Flags().IntVar(&days, "days", 0, "Number of days")
	cmd.MarkFlagsMutuallyExclusive("to", "days")

	return cmd
}
