package handler

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cuongbtq/delayq/internal/storage"
)

// DecodeJobCursor parses an opaque page cursor. An empty string is no cursor.
func DecodeJobCursor(cursorStr string) (*storage.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid cursor encoding")
	}

	ts, eventID, ok := strings.Cut(string(decoded), "|")
	if !ok || eventID == "" {
		return nil, errors.New("invalid cursor format")
	}

	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "invalid target timestamp in cursor")
	}

	return &storage.JobCursor{
		TargetTimestamp: time.Unix(0, nanos).UTC(),
		EventID:         eventID,
	}, nil
}

// EncodeJobCursor is the inverse of DecodeJobCursor.
func EncodeJobCursor(cursor *storage.JobCursor) string {
	cs := strconv.FormatInt(cursor.TargetTimestamp.UnixNano(), 10) + "|" + cursor.EventID
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
