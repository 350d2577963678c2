package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli"

	"github.com/timeboxd/timeboxd/internal/plan"
)

// trigger runs one placement pass synchronously and prints the outcome.
func trigger(ctx *cli.Context) error {
	client := newRPCClient(ctx)

	var sum plan.Summary
	if err := client.call(context.Background(), "run.trigger", nil, &sum); err != nil {
		printRuntimeErr(ctx, "trigger", "run", err)
		return nil
	}
	printSummary(&sum)
	return nil
}

func printSummary(sum *plan.Summary) {
	fmt.Printf("run %s: %d task(s) fetched, %d event(s) created\n",
		sum.RunID, sum.TasksFetched, sum.EventsCreated)
	for _, res := range sum.Processed {
		if res.Failed() {
			fmt.Printf("  ✗ %s: %s\n", res.Title, res.Error)
			continue
		}
		fmt.Printf("  ✓ %s: %d event(s)\n", res.Title, len(res.EventIDs))
	}
}
