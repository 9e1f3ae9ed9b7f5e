// Package buildinfo holds build-time metadata injected through -ldflags.
package buildinfo

import (
	"fmt"

	"github.com/google/uuid"
)

// Set with -ldflags "-X github.com/urbansound/soundscape/internal/buildinfo.version=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

// Context contains build-time metadata that is not user-configurable
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string

	// InstanceID identifies this process in error reports
	InstanceID string
}

// Current returns the metadata of the running binary with a fresh
// instance ID.
func Current() *Context {
	return &Context{
		Version:    version,
		BuildDate:  buildDate,
		InstanceID: uuid.NewString(),
	}
}

// Release is the release name reported to Sentry
func (c *Context) Release() string {
	return "soundscape@" + c.Version
}

// String is the one-line version banner
func (c *Context) String() string {
	return fmt.Sprintf("soundscape %s (built %s)", c.Version, c.BuildDate)
}
