package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/creachadair/jrpc2"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/timeboxd/timeboxd/internal/plan"
)

// watch follows run progress pushed by the daemon until interrupted.
// Each run gets a progress bar over its tasks; placed events stream as
// lines above it.
func watch(cliCtx *cli.Context) error {
	client := newRPCClient(cliCtx)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn, err := client.dialWS(ctx)
	if err != nil {
		printRuntimeErr(cliCtx, "watch", "dial", err)
		return nil
	}

	progress := mpb.NewWithContext(ctx, mpb.WithWidth(40))
	var bar *mpb.Bar

	onProgress := func(p plan.Progress) {
		switch p.Kind {
		case plan.ProgressRunStarted:
			fmt.Printf("run %s started: %d task(s)\n", p.RunID, p.TasksFetched)
			if p.TasksFetched > 0 {
				bar = progress.New(int64(p.TasksFetched),
					mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟"),
					mpb.PrependDecorators(
						decor.Name("Planning", decor.WC{W: len("Planning") + 1, C: decor.DindentRight}),
					),
					mpb.AppendDecorators(
						decor.CountersNoUnit("%d / %d"),
					),
				)
			}
		case plan.ProgressEventCreated:
			fmt.Printf("  placed %q %s - %s\n", p.Title,
				p.Start.Format("Mon 15:04"), p.End.Format("15:04"))
		case plan.ProgressTaskPlanned:
			if bar != nil {
				bar.Increment()
			}
		case plan.ProgressTaskFailed:
			fmt.Printf("  failed %q: %s\n", p.Title, p.Error)
			if bar != nil {
				bar.Increment()
			}
		case plan.ProgressRunCompleted:
			if bar != nil {
				bar.SetTotal(-1, true)
				bar = nil
			}
			fmt.Printf("run %s completed: %d event(s) created\n", p.RunID, p.EventsCreated)
		}
	}

	ch := &wsChannel{conn: conn, ctx: ctx}
	rpc := jrpc2.NewClient(ch, &jrpc2.ClientOptions{
		OnNotify: func(req *jrpc2.Request) {
			var p plan.Progress
			if err := req.UnmarshalParams(&p); err != nil {
				return
			}
			onProgress(p)
		},
	})
	defer rpc.Close()

	fmt.Println("watching for runs, press Ctrl-C to stop")
	<-ctx.Done()
	return nil
}
