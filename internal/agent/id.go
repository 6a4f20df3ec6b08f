package agent

import (
	"github.com/oklog/ulid/v2"
)

// newSessionID mints a remote session identifier. ULIDs are sortable by
// creation time, which keeps transcript archives easy to inspect.
func newSessionID() string {
	return "sess_" + ulid.Make().String()
}
