// Package buildinfo reports the version of the running Sandstore binary.
//
// Version, Commit and BuildTime are injected with ldflags at release time.
// Development builds fall back to the VCS stamp the Go toolchain embeds.
package buildinfo
