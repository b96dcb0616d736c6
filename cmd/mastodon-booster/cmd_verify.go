// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/aiku/mastodon-booster/pkg/booster"
)

type VerifyCmd struct {
	flags *Flags
}

func NewVerifyCmd(flags *Flags) *VerifyCmd {
	return &VerifyCmd{flags: flags}
}

func (cmd *VerifyCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "verify",
		Usage:     "Check the stored credentials against the server",
		ArgsUsage: "<credentials-file>",
		Action:    cmd.run,
	})
	return app
}

func (cmd *VerifyCmd) run(ctx context.Context, c *cli.Command) error {
	path, err := credentialsArg(c)
	if err != nil {
		return err
	}

	session, err := booster.NewFileCredentials(path, nil).Load(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	acct, err := booster.VerifySession(ctx, session)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "Authorized as @%s (%s) on %s\n", acct.Acct, acct.URL, session.Server())
	return nil
}
