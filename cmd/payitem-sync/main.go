// payitem-sync reconciles partner pay items into the local database from the command line.
//
// Usage:
//
//	payitem-sync sync <business-external-id> [--queue]
//	payitem-sync sync-all
//	payitem-sync export <business-external-id> -o pay-items.xlsx
//	payitem-sync migrate
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(productionDeps())
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "An unexpected error occurred: %s\n", err)
		}
		stop()
		os.Exit(1)
	}
}
