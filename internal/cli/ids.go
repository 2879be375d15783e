package cli

import "github.com/google/uuid"

// newSessionID returns a time-sortable UUIDv7 identifying one sync session
// in logs. UUIDv7 embeds a timestamp in its most significant bits, so
// sorting session ids sorts sessions by start time.
func newSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}
