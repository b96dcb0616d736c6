// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/aiku/mastodon-booster/pkg/booster"
)

const exampleConfigCmdName = "example-config"

type ExampleConfigCmd struct {
	flags *Flags
}

func NewExampleConfigCmd(flags *Flags) *ExampleConfigCmd {
	return &ExampleConfigCmd{flags: flags}
}

func (cmd *ExampleConfigCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:   exampleConfigCmdName,
		Usage:  "Print an example config file",
		Action: cmd.run,
	})
	return app
}

func (cmd *ExampleConfigCmd) run(_ context.Context, c *cli.Command) error {
	_, err := fmt.Fprint(c.Root().Writer, booster.ExampleConfig)
	return err
}
