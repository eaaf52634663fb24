package core

import (
	"fmt"

	"github.com/google/uuid"
)

// DebugName builds a unique resource name from a short kind prefix, for
// log lines and validation layer output.
func DebugName(kind string) string {
	return fmt.Sprintf("%s-%s", kind, uuid.NewString()[:8])
}
