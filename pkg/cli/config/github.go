package config

import "github.com/urfave/cli/v3"

// GitHub holds GitHub configuration
type GitHub struct {
	WebhookSecret string
}

// Flags returns CLI flags for GitHub configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-webhook-secret",
			Usage:       "GitHub webhook secret. The GitHub push endpoint is disabled when empty.",
			Destination: &c.WebhookSecret,
			Sources:     cli.EnvVars("REFHOOK_GITHUB_WEBHOOK_SECRET"),
		},
	}
}
