// Command flairwarden is the moderation engine's config toolchain:
// it validates flair configuration documents and converts legacy YAML
// ones to the canonical JSON form. The service itself is started
// through engine.New with a platform client supplied by the operator's
// deployment.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/flairwarden/flairwarden/engine"
	"github.com/flairwarden/flairwarden/internal/logging"
)

func main() {
	logging.Setup()
	if lvl := os.Getenv("FLAIRWARDEN_LOG_LEVEL"); lvl != "" {
		parsed, err := logging.ParseLevel(lvl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid FLAIRWARDEN_LOG_LEVEL: %v\n", err)
			os.Exit(2)
		}
		logging.SetLevel(parsed)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "check":
		err = runCheck(os.Args[2:])
	case "convert":
		err = runConvert(os.Args[2:])
	case "version":
		fmt.Println(engine.Version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: flairwarden <check|convert|version> [flags]")
	fmt.Fprintln(os.Stderr, "  check <file>    validate a flair configuration document")
	fmt.Fprintln(os.Stderr, "  convert <file>  convert a legacy YAML document to canonical JSON")
}
