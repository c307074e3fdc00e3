package migrator

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// golang-migrate echoes the full database URL in its errors, credentials
// included. Everything here exists to keep those out of the logs.

var userPassPattern = regexp.MustCompile(`(\w+):([^@\s]+)@`)

// sanitizeConnectionError strips credentials from a migrate error before it
// is returned to callers that log it. When the URL cannot be parsed the
// whole URL is redacted rather than risk leaking a malformed password.
func sanitizeConnectionError(err error, dbURL string) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	if dbURL == "" {
		return fmt.Errorf("migrate.New: %s", msg)
	}

	u, parseErr := url.Parse(dbURL)
	if parseErr != nil || u.Scheme == "" || u.Host == "" {
		msg = strings.ReplaceAll(msg, dbURL, "[DATABASE_URL_REDACTED]")
		msg = userPassPattern.ReplaceAllString(msg, "$1:[REDACTED]@")
		return fmt.Errorf("migrate.New: %s", msg)
	}

	// Host survives; user, password and database name do not.
	safeURL := fmt.Sprintf("%s://[REDACTED]@%s/[REDACTED]", u.Scheme, u.Host)
	msg = strings.ReplaceAll(msg, dbURL, safeURL)

	if u.User != nil {
		if pass, ok := u.User.Password(); ok && pass != "" {
			msg = strings.ReplaceAll(msg, pass, "[REDACTED]")
			if encoded := url.QueryEscape(pass); encoded != pass {
				msg = strings.ReplaceAll(msg, encoded, "[REDACTED]")
			}
		}
	}

	return fmt.Errorf("migrate.New: %s", msg)
}
