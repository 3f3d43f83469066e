// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package buildinfo exposes the version metadata stamped into release
// binaries of the gateway.
package buildinfo

import "fmt"

// Overridden via -ldflags at release time; the defaults identify a local
// development build.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Banner returns the one-line identification string printed at startup.
func Banner() string {
	return fmt.Sprintf("CatieCli Version: %s, Commit: %s, BuiltAt: %s", Version, Commit, BuildDate)
}
