// Package buildinfo carries version metadata injected at link time, kept
// apart from user configuration.
package buildinfo

import "runtime/debug"

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Context holds build metadata. A nil Context reports UnknownValue.
type Context struct {
	version   string
	buildDate string
}

// NewContext creates build metadata. Empty values read as UnknownValue.
func NewContext(version, buildDate string) *Context {
	return &Context{version: version, buildDate: buildDate}
}

// Version returns the release version, falling back to the module
// version recorded by the Go toolchain.
func (c *Context) Version() string {
	if c != nil && c.version != "" {
		return c.version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return UnknownValue
}

// BuildDate returns the build timestamp.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// UserAgent identifies outbound requests and telemetry events.
func (c *Context) UserAgent() string {
	return "soilnet/" + c.Version()
}
