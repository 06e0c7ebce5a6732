package postgresql

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
)

// SQLSTATE codes the stores react to.
const (
	CodeUniqueViolation pq.ErrorCode = "23505"
	CodeCheckViolation  pq.ErrorCode = "23514"
	CodeDuplicateTable  pq.ErrorCode = "42P07"
)

// ErrorCode extracts the SQLSTATE of a wrapped *pq.Error.
func ErrorCode(err error) (pq.ErrorCode, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code, true
	}
	return "", false
}

// IsUniqueViolation reports a unique or primary key violation.
func IsUniqueViolation(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == CodeUniqueViolation
}

// IsDuplicateTable reports a CREATE TABLE on a name that already exists.
func IsDuplicateTable(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == CodeDuplicateTable
}

// IsNoPartition reports an insert or update whose row matches no partition
// of a partitioned table.
func IsNoPartition(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == CodeCheckViolation && strings.Contains(pqErr.Message, "no partition")
}
