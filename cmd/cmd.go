// Package cmd implements the timeboxd command line interface: the
// daemon itself plus client commands that talk to it over JSON-RPC.
package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/timeboxd/timeboxd/internal/config"
)

// BuildArgs carries link-time build metadata from main.
type BuildArgs struct {
	Version   string
	Commit    string
	Date      string
	BuildType string
}

var (
	version   string
	commit    string
	date      string
	buildType string
)

var (
	addrFlag = cli.StringFlag{
		Name:   "addr, a",
		Usage:  "daemon address",
		EnvVar: config.EnvHTTPAddr,
		Value:  config.DefaultHTTPAddr,
	}
	secretFlag = cli.StringFlag{
		Name:   "secret, s",
		Usage:  "RPC shared secret",
		EnvVar: config.EnvRPCSecret,
	}
	clientFlags = []cli.Flag{addrFlag, secretFlag}
)

// Execute runs the CLI.
func Execute(args []string, b BuildArgs) error {
	version = b.Version
	commit = b.Commit
	date = b.Date
	buildType = b.BuildType
	if version == "" {
		version = "dev"
	}

	app := cli.App{
		Name:         "timeboxd",
		HelpName:     "timeboxd",
		Usage:        "schedules Notion tasks into Google Calendar gaps",
		Version:      fmt.Sprintf("%s-%s", version, buildType),
		UsageText:    "timeboxd <command> [arguments...]",
		OnUsageError: usageErrorCallback,
		Commands: []cli.Command{
			{
				Name:   "daemon",
				Usage:  "run the scheduling daemon",
				Action: runDaemon,
			},
			{
				Name:    "trigger",
				Aliases: []string{"t"},
				Usage:   "run one placement pass now",
				Action:  trigger,
				Flags:   clientFlags,
			},
			{
				Name:   "status",
				Usage:  "show daemon state and the last run",
				Action: status,
				Flags:  clientFlags,
			},
			{
				Name:    "history",
				Aliases: []string{"l"},
				Usage:   "list recent runs",
				Action:  history,
				Flags: append([]cli.Flag{cli.IntFlag{
					Name:  "limit, n",
					Usage: "maximum runs to list",
					Value: 10,
				}}, clientFlags...),
			},
			{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "follow run progress live",
				Action:  watch,
				Flags:   clientFlags,
			},
			{
				Name:   "test-event",
				Usage:  "insert a throwaway calendar event to verify credentials",
				Action: testEvent,
				Flags:  clientFlags,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  help,
			},
			{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "prints the installed version",
				Action:  getVersion,
			},
		},
		Action:      status,
		Flags:       clientFlags,
		HideHelp:    true,
		HideVersion: true,
	}
	return app.Run(args)
}
