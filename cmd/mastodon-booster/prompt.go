// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// formPrompter asks for the authorization code with an interactive form.
type formPrompter struct{}

func (formPrompter) Prompt(ctx context.Context, authURL string) (string, error) {
	var code string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Authorize mastodon-booster").
				Description("Open this URL in your browser and authorize the app:\n\n"+authURL),
			huh.NewInput().
				Title("Authorization code").
				Description("Paste the code shown after authorizing").
				Validate(validateCode).
				Value(&code),
		),
	).RunWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("form: %w", err)
	}
	return strings.TrimSpace(code), nil
}

func validateCode(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("code is required")
	}
	return nil
}
