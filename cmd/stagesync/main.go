// Command stagesync replays staged content changes onto a target store.
package main

import (
	"errors"
	"os"

	"github.com/roach88/stagesync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}
	// Flag and argument errors come from cobra, which already printed them.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(exitErr.Code)
}
