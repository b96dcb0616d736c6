// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command mastodon-booster keeps a streaming connection to a Mastodon
// account and boosts every post in which a trusted account mentions it.
// It reconnects through network drops and server errors and stops only
// when its credentials are rejected or its restart policy gives up.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/aiku/mastodon-booster/pkg/booster"
	"github.com/aiku/mastodon-booster/pkg/logutils"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	flags := &Flags{}
	app := newApp(flags)

	exitCode := 0
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		exitCode = 1
	}
	os.Exit(exitCode)
}

func newApp(flags *Flags) *cli.Command {
	runCmd := NewRunCmd(flags)

	app := &cli.Command{
		Name:      "mastodon-booster",
		Usage:     "Boost Mastodon posts that mention you from a trusted origin",
		UsageText: "mastodon-booster [global options] <credentials-file>\nmastodon-booster [global options] command [command options]",
		Description: `mastodon-booster subscribes to the streaming API of your Mastodon account
and boosts every post in which an account from the trusted origin mentions you.

The credentials file holds the registered app and access token. When it does
not exist yet, the registration flow runs first and writes it.`,
		Version: fmt.Sprintf("%s (%s) %s", Tag, Commit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("BOOSTER_CONFIG"),
				Value:       DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (trace, debug, info, warn, error), overrides the config",
				Sources:     cli.EnvVars("BOOSTER_LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// Printing the example must work before any config exists.
			if c.Args().First() == exampleConfigCmdName {
				return ctx, nil
			}
			cfg, err := booster.Load(flags.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			logger, err := logutils.New(cfg.Logging, flags.LogLevel)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			flags.Log = logger
			zerolog.DefaultContextLogger = logger
			return ctx, nil
		},
		Action: runCmd.Run,
	}

	app = runCmd.Register(app)
	app = NewRegisterCmd(flags).Register(app)
	app = NewVerifyCmd(flags).Register(app)
	app = NewHistoryCmd(flags).Register(app)
	app = NewExampleConfigCmd(flags).Register(app)
	return app
}
