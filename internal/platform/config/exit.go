package config

import (
	"fmt"
	"os"
)

// Exitf reports a fatal startup error on stderr and exits with code 1.
// OpenConf CLIs (conference, seed, session-grant-key) route their
// unrecoverable errors through it so failures print one consistent line.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
