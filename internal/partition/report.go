package partition

import "time"

// Report aggregates the per-day outcomes of one ensure run.
// Created + Skipped + Failed always equals TotalPartitionsRequested.
type Report struct {
	FromDate                 time.Time         `json:"from_date"`
	ToDate                   time.Time         `json:"to_date"`
	TotalPartitionsRequested int               `json:"total_partitions_requested"`
	Created                  int               `json:"created"`
	Skipped                  int               `json:"skipped"`
	Failed                   int               `json:"failed"`
	CreatedPartitions        []string          `json:"created_partitions"`
	SkippedPartitions        []string          `json:"skipped_partitions"`
	FailedPartitions         []string          `json:"failed_partitions"`
	Errors                   map[string]string `json:"errors,omitempty"`
}

func newReport(from, to time.Time, total int) *Report {
	return &Report{
		FromDate:                 from,
		ToDate:                   to,
		TotalPartitionsRequested: total,
		CreatedPartitions:        []string{},
		SkippedPartitions:        []string{},
		FailedPartitions:         []string{},
	}
}

func (r *Report) created(name string) {
	r.Created++
	r.CreatedPartitions = append(r.CreatedPartitions, name)
}

func (r *Report) skipped(name string) {
	r.Skipped++
	r.SkippedPartitions = append(r.SkippedPartitions, name)
}

func (r *Report) failed(name string, err error) {
	r.Failed++
	r.FailedPartitions = append(r.FailedPartitions, name)
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[name] = err.Error()
}

// Success reports at least one partition created and none failed. A run that
// only skipped is not a failure but not a success either.
func (r *Report) Success() bool {
	return r.Created > 0 && r.Failed == 0
}

// AllFailed reports that every requested partition failed.
func (r *Report) AllFailed() bool {
	return r.TotalPartitionsRequested > 0 && r.Failed == r.TotalPartitionsRequested
}
