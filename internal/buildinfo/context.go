// Package buildinfo holds build-time metadata kept apart from user configuration.
package buildinfo

import "runtime/debug"

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Context is the metadata injected at startup. A nil Context reports
// UnknownValue everywhere.
type Context struct {
	Version   string
	BuildDate string
	SystemID  string
}

// NewContext creates a Context. An empty version falls back to the module
// version recorded by the Go toolchain.
func NewContext(version, buildDate, systemID string) *Context {
	if version == "" {
		version = moduleVersion()
	}
	return &Context{Version: version, BuildDate: buildDate, SystemID: systemID}
}

func moduleVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return ""
	}
	return info.Main.Version
}

// GetVersion returns the build version.
func (c *Context) GetVersion() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.Version)
}

// GetBuildDate returns the build date.
func (c *Context) GetBuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.BuildDate)
}

// GetSystemID returns the telemetry system id.
func (c *Context) GetSystemID() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.SystemID)
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}
