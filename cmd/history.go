package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli"

	"github.com/timeboxd/timeboxd/internal/server"
)

// history lists recent runs, newest first.
func history(ctx *cli.Context) error {
	client := newRPCClient(ctx)

	var res server.HistoryResult
	params := server.HistoryParams{Limit: ctx.Int("limit")}
	if err := client.call(context.Background(), "run.history", &params, &res); err != nil {
		printRuntimeErr(ctx, "history", "list", err)
		return nil
	}
	if len(res.Runs) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}
	for _, sum := range res.Runs {
		failed := 0
		for _, r := range sum.Processed {
			if r.Failed() {
				failed++
			}
		}
		fmt.Printf("%s  %s  tasks=%d events=%d failed=%d\n",
			sum.StartedAt.Format("2006-01-02 15:04"),
			sum.RunID,
			sum.TasksFetched,
			sum.EventsCreated,
			failed,
		)
	}
	return nil
}
