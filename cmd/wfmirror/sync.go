package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wfmirror/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a full mirror refresh now",
	Long: `Fetch the complete remote outline and replace the local mirror with it.

The refresh is transactional: on any failure the previous snapshot is kept.
Export calls are rate limited; when called too soon this reports how long
to wait instead of retrying.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, closer, err := openApp()
		if err != nil {
			fatal(err)
		}
		defer closer()

		start := time.Now()
		err = a.engine.FullSync(context.Background())

		var rl *engine.RateLimitError
		switch {
		case errors.As(err, &rl):
			fmt.Printf("Rate limited: retry in %d seconds\n", int(rl.RetryAfter.Seconds()+0.5))
		case errors.Is(err, engine.ErrSyncInProgress):
			fmt.Println("A sync is already in progress")
		case err != nil:
			fatal(err)
		default:
			count, cerr := a.store.CountNodes()
			if cerr != nil {
				fatal(cerr)
			}
			fmt.Printf("Synced %d nodes in %s\n", count, time.Since(start).Round(time.Millisecond))
		}
	},
}
