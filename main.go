// SPDX-License-Identifier: MIT
package main

import (
	"os"
	"runtime"

	"beatsync/cmd"
	applog "beatsync/internal/log"
	"beatsync/pkg/build"
)

// main runs the command line. Startup and shutdown are cold paths; the audio
// callback started by the root command is the hot path.
func main() {
	// Development builds run without ldflags and keep the default build info.
	_ = build.Initialize()

	// One thread for the audio callback, one for UI and I/O.
	runtime.GOMAXPROCS(2)

	if err := cmd.Execute(); err != nil {
		applog.Errorf("%v", err)
		os.Exit(1)
	}
}
