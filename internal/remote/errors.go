package remote

import (
	"errors"
	"fmt"
	"strings"
)

// RemoteError is the normalized failure shape for both backends. Code carries
// a Postgres SQLSTATE or a PostgREST error code when one is available.
type RemoteError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote error: %s", e.Message)
}

func asRemote(err error) *RemoteError {
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}
	return nil
}

// IsSchemaCacheMiss reports whether err is a write rejection caused by the
// client naming a column the server does not currently expose. This is the
// only error class the fallback writer retries.
func IsSchemaCacheMiss(err error) bool {
	re := asRemote(err)
	if re == nil {
		return false
	}
	if re.Code == "42703" || re.Code == "PGRST204" {
		return true
	}
	text := strings.ToLower(re.Message + " " + re.Details)
	if !strings.Contains(text, "column") {
		return false
	}
	return strings.Contains(text, "schema cache") ||
		strings.Contains(text, "could not find") ||
		strings.Contains(text, "does not exist")
}

// IsMissingRelation reports whether err means the named table does not exist.
// Used only by the property table resolver; never retried as a write.
func IsMissingRelation(err error) bool {
	re := asRemote(err)
	if re == nil {
		return false
	}
	if re.Code == "42P01" || re.Code == "PGRST205" {
		return true
	}
	text := strings.ToLower(re.Message + " " + re.Details)
	if strings.Contains(text, "relation") && strings.Contains(text, "does not exist") {
		return true
	}
	return strings.Contains(text, "could not find the table")
}
