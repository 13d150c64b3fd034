package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes.
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	cyan  = "\033[36m"
	dim   = "\033[2m"
)

var logoLines = [6]string{
	`  _____ _       _      __        __            _            `,
	` |  ___| | __ _(_)_ __ \ \      / /_ _ _ __ __| | ___ _ __  `,
	` | |_  | |/ _` + "`" + ` | | '__| \ \ /\ / / _` + "`" + ` | '__/ _` + "`" + ` |/ _ \ '_ \ `,
	` |  _| | | (_| | | |     \ V  V / (_| | | | (_| |  __/ | | |`,
	` |_|   |_|\__,_|_|_|      \_/\_/ \__,_|_|  \__,_|\___|_| |_|`,
	`                                                            `,
}

// PrintBanner prints the FlairWarden ASCII art logo with version and
// data directory below it. Colors are used only when stderr is a TTY.
func PrintBanner(ver, dataDir string) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	for i := 0; i < 6; i++ {
		if color {
			fmt.Fprintf(os.Stderr, "%s%s%s\n", bold+cyan, logoLines[i], reset)
		} else {
			fmt.Fprintln(os.Stderr, logoLines[i])
		}
	}

	if color {
		fmt.Fprintf(os.Stderr, "\n  %sversion%s %s   %sdata%s %s\n\n",
			dim, reset, ver, dim, reset, dataDir)
	} else {
		fmt.Fprintf(os.Stderr, "\n  version %s   data %s\n\n", ver, dataDir)
	}
}
