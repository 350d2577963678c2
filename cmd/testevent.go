package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli"

	"github.com/timeboxd/timeboxd/internal/server"
)

// testEvent asks the daemon to insert a throwaway calendar event.
func testEvent(ctx *cli.Context) error {
	client := newRPCClient(ctx)

	var res server.TestEventResult
	if err := client.call(context.Background(), "calendar.testEvent", nil, &res); err != nil {
		printRuntimeErr(ctx, "test-event", "create", err)
		return nil
	}
	fmt.Printf("created event %s (%s - %s)\n",
		res.EventID,
		res.Start.Format("15:04"),
		res.End.Format("15:04"),
	)
	return nil
}
