// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/mastodon-booster/pkg/booster"
	"github.com/aiku/mastodon-booster/pkg/booster/ledger"
)

type RunCmd struct {
	flags *Flags
}

func NewRunCmd(flags *Flags) *RunCmd {
	return &RunCmd{flags: flags}
}

func (cmd *RunCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Stream notifications and boost trusted mentions",
		ArgsUsage: "<credentials-file>",
		Description: `Runs the booster. This is also what 'mastodon-booster <credentials-file>'
does. If the credentials file does not exist, the registration flow runs first.`,
		Action: cmd.Run,
	})
	return app
}

func (cmd *RunCmd) Run(ctx context.Context, c *cli.Command) error {
	path, err := credentialsArg(c)
	if err != nil {
		return err
	}
	cfg := cmd.flags.Config
	log := cmd.flags.Log

	ctx, stop := signalContext(ctx)
	defer stop()

	tracker := booster.NewStatusTracker()
	observers := booster.Observers{
		booster.LogObserver{Log: log.With().Str("component", "observer").Logger()},
		tracker,
	}

	var store *ledger.Store
	if cfg.LedgerPath != "" {
		store, err = ledger.Open(cfg.LedgerPath)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close ledger")
			}
		}()
		observers = append(observers, booster.LedgerObserver{
			Store: store,
			Log:   log.With().Str("component", "ledger").Logger(),
		})
	}

	runner := booster.NewRunner(booster.RunnerParams{
		Config:      cfg,
		Credentials: cmd.flags.credentials(path),
		Observer:    observers,
		Log:         *log,
	})

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	g.Go(func() error {
		defer cancelRun()
		return runner.Run(runCtx)
	})
	if cfg.AdminAPIAddr != "" {
		admin := &booster.AdminAPI{
			Status:      tracker,
			Reconnector: runner,
			Ledger:      store,
			Log:         log.With().Str("component", "admin_api").Logger(),
		}
		g.Go(func() error {
			return admin.Serve(runCtx, cfg.AdminAPIAddr)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Shut down")
	return nil
}
