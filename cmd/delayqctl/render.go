package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pressly/goose/v3"
	"github.com/pterm/pterm"

	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/partition"
)

func migrationRows(statuses []*goose.MigrationStatus) pterm.TableData {
	rows := pterm.TableData{{"Version", "File", "State", "Applied At"}}
	for _, st := range statuses {
		applied := "-"
		if !st.AppliedAt.IsZero() {
			applied = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", st.Source.Version),
			st.Source.Path,
			string(st.State),
			applied,
		})
	}
	return rows
}

func partitionRows(infos []partition.Info) pterm.TableData {
	rows := pterm.TableData{{"Name", "Schema", "From", "To", "Rows (est.)", "Size"}}
	for _, info := range infos {
		from, to := "-", "-"
		if info.From != nil {
			from = info.From.Format(domain.DayLayout)
		}
		if info.To != nil {
			to = info.To.Format(domain.DayLayout)
		}
		rows = append(rows, []string{info.Name, info.Schema, from, to,
			strconv.FormatInt(info.RowCount, 10), info.Size})
	}
	return rows
}

// reportRows lists every partition of the run with its outcome, ordered by name.
func reportRows(r *partition.Report) pterm.TableData {
	type row struct{ name, outcome, detail string }

	var all []row
	for _, name := range r.CreatedPartitions {
		all = append(all, row{name, "created", ""})
	}
	for _, name := range r.SkippedPartitions {
		all = append(all, row{name, "skipped", ""})
	}
	for _, name := range r.FailedPartitions {
		all = append(all, row{name, "failed", r.Errors[name]})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].name < all[j].name })

	rows := pterm.TableData{{"Partition", "Outcome", "Error"}}
	for _, x := range all {
		rows = append(rows, []string{x.name, x.outcome, x.detail})
	}
	return rows
}

func reportSummary(r *partition.Report) string {
	return fmt.Sprintf("%s to %s: %d requested, %d created, %d skipped, %d failed",
		r.FromDate.Format(domain.DayLayout), r.ToDate.Format(domain.DayLayout),
		r.TotalPartitionsRequested, r.Created, r.Skipped, r.Failed)
}
