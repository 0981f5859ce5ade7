package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

// Identity names one live surface context. The ID is generated once at
// context startup and is immutable for the context's lifetime; IDs are
// never reused within a session.
type Identity struct {
	// ID is the opaque context identifier.
	ID string

	// Role distinguishes the primary window from detached popouts.
	Role wire.Role

	// LastSeen is when this context last announced itself. Maintained
	// by the registry for peer entries; zero for the local identity.
	LastSeen time.Time
}

// NewIdentity generates a fresh context identity: a millisecond time
// component plus a random suffix, so IDs sort roughly by start time and
// never collide across contexts started in the same millisecond.
func NewIdentity(role wire.Role) Identity {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return Identity{
		ID:   fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix),
		Role: role,
	}
}
