package partition

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cuongbtq/delayq/internal/domain"
)

// nameDateLayout is the compact date suffix of a partition name.
const nameDateLayout = "20060102"

// Partition is one daily partition covering [From, To).
type Partition struct {
	Name string
	From time.Time
	To   time.Time
}

// TruncateDay returns UTC midnight of the UTC calendar day containing t.
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Name returns "<base>_YYYYMMDD" for the UTC calendar day containing day.
func Name(base string, day time.Time) string {
	return base + "_" + day.UTC().Format(nameDateLayout)
}

// ForDay returns the partition of base covering the UTC day containing day.
func ForDay(base string, day time.Time) Partition {
	from := TruncateDay(day)
	return Partition{
		Name: Name(base, from),
		From: from,
		To:   from.AddDate(0, 0, 1),
	}
}

// ParseName parses a partition name of base back into its partition. Names
// that are not exactly "<base>_YYYYMMDD" with a real calendar date are
// rejected with ErrInvalidRange.
func ParseName(base, name string) (Partition, error) {
	prefix := base + "_"
	if !strings.HasPrefix(name, prefix) {
		return Partition{}, errors.Wrapf(domain.ErrInvalidRange, "%q is not a partition of %s", name, base)
	}

	suffix := strings.TrimPrefix(name, prefix)
	if len(suffix) != len(nameDateLayout) {
		return Partition{}, errors.Wrapf(domain.ErrInvalidRange, "%q is not a partition of %s", name, base)
	}

	day, err := time.ParseInLocation(nameDateLayout, suffix, time.UTC)
	if err != nil || day.Format(nameDateLayout) != suffix {
		return Partition{}, errors.Wrapf(domain.ErrInvalidRange, "%q has an invalid date suffix", name)
	}

	return ForDay(base, day), nil
}

// Days returns the daily partitions covering [from, to), both truncated to UTC days.
func Days(base string, from, to time.Time) []Partition {
	start, end := TruncateDay(from), TruncateDay(to)

	var out []Partition
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		out = append(out, ForDay(base, d))
	}
	return out
}
