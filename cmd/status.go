package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli"

	"github.com/timeboxd/timeboxd/internal/server"
)

// status prints the daemon state and the most recent run.
func status(ctx *cli.Context) error {
	client := newRPCClient(ctx)

	var ver server.VersionResult
	if err := client.call(context.Background(), "system.getVersion", nil, &ver); err != nil {
		printRuntimeErr(ctx, "status", "version", err)
		return nil
	}

	var st server.StatusResult
	if err := client.call(context.Background(), "run.status", nil, &st); err != nil {
		printRuntimeErr(ctx, "status", "status", err)
		return nil
	}

	state := "idle"
	if st.Running {
		state = "running"
	}
	fmt.Printf("timeboxd %s: %s, %d watcher(s)\n", ver.Version, state, st.Watchers)
	if st.LastRun == nil {
		fmt.Println("no runs recorded yet")
		return nil
	}
	fmt.Printf("last run at %s:\n", st.LastRun.StartedAt.Format("2006-01-02 15:04"))
	printSummary(st.LastRun)
	return nil
}
