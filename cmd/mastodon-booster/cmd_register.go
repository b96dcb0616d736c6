// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

type RegisterCmd struct {
	flags *Flags
}

func NewRegisterCmd(flags *Flags) *RegisterCmd {
	return &RegisterCmd{flags: flags}
}

func (cmd *RegisterCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "register",
		Usage:     "Register the app and authorize an account",
		ArgsUsage: "<credentials-file>",
		Description: `Registers a new app on the configured instance, asks you to authorize it
and writes the resulting credentials file, replacing any existing one.`,
		Action: cmd.run,
	})
	return app
}

func (cmd *RegisterCmd) run(ctx context.Context, c *cli.Command) error {
	path, err := credentialsArg(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(ctx)
	defer stop()

	session, err := cmd.flags.credentials(path).Register(ctx)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "Saved credentials for %s to %s\n", session.Server(), path)
	return nil
}
