// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package version carries build-time version information.
package version

import "fmt"

// Info contains version details injected via ldflags at build time.
// Zero values mean the binary was built without them (go run, tests).
type Info struct {
	Version   string // semantic version from git tags, e.g. "v1.2.3"
	GitCommit string // short commit hash
	BuildTime string // RFC3339 build timestamp
}

// String formats the info as a single human-readable line.
func (i Info) String() string {
	v := i.Version
	if v == "" {
		v = "dev"
	}
	if i.GitCommit == "" && i.BuildTime == "" {
		return v
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", v, i.GitCommit, i.BuildTime)
}
