package main

import (
	"context"
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		// Sync already printed what failed; only the exit code is left.
		if errors.Is(err, errSyncIncomplete) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}
