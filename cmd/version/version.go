// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at link time with -ldflags "-X".
var (
	Version   = "unknown-version"
	GitCommit = "unknown-commit"
	BuildTime = "unknown-buildtime"
)

// BuildInfo describes the binary. Without link-time values the module version and VCS
// revision recorded by the Go toolchain are used.
func BuildInfo() string {
	version, commit := Version, GitCommit
	if info, ok := debug.ReadBuildInfo(); ok {
		if version == "unknown-version" && info.Main.Version != "" {
			version = info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && commit == "unknown-commit" {
				commit = setting.Value
			}
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Version:\t %s\n", version)
	fmt.Fprintf(&b, "Go version:\t %s\n", runtime.Version())
	fmt.Fprintf(&b, "Git commit:\t %s\n", commit)
	fmt.Fprintf(&b, "Built:\t\t %s\n", BuildTime)
	fmt.Fprintf(&b, "OS/Arch:\t %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return b.String()
}
