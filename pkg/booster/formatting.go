// Copyright 2024-2026 Aiku AI

package booster

import (
	"github.com/aiku/mastodon-booster/pkg/booster/statusfmt"
)

// excerptRunes bounds the status text attached to log lines.
const excerptRunes = 80

// statusExcerpt converts status HTML to a one-line plain text excerpt.
func statusExcerpt(content string) string {
	return statusfmt.Excerpt(content, excerptRunes)
}
