// Copyright 2024-2026 Aiku AI

package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/aiku/mastodon-booster/pkg/booster"
)

// Flags holds the global flags and what the Before hook builds from them.
type Flags struct {
	ConfigPath string
	LogLevel   string

	// Config and Log are set in the Before hook.
	Config *booster.Config
	Log    *zerolog.Logger
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "mastodon-booster", "config.yaml")
}

var errNoCredentialsFile = errors.New("missing <credentials-file> argument")

func credentialsArg(c *cli.Command) (string, error) {
	path := c.Args().First()
	if path == "" {
		return "", errNoCredentialsFile
	}
	return path, nil
}

// credentials builds the file-backed provider with a registrar that asks
// on the terminal.
func (f *Flags) credentials(path string) *booster.FileCredentials {
	registrar := &booster.Registrar{
		Server:     f.Config.InstanceURL,
		ClientName: f.Config.ClientName,
		Website:    f.Config.Website,
		Prompter:   newPrompter(),
		Log:        f.Log.With().Str("component", "register").Logger(),
	}
	return booster.NewFileCredentials(path, registrar)
}

func newPrompter() booster.Prompter {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return formPrompter{}
	}
	return booster.TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}
