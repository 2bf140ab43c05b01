package config

import "github.com/urfave/cli/v3"

// Server holds server configuration
type Server struct {
	Addr           string
	InternalSecret string
}

// Flags returns CLI flags for server configuration
func (c *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Server address",
			Value:       "localhost:8080",
			Destination: &c.Addr,
			Sources:     cli.EnvVars("REFHOOK_ADDR"),
		},
		&cli.StringFlag{
			Name:        "internal-api-secret",
			Usage:       "HS256 key shared with the Git server for the internal API",
			Destination: &c.InternalSecret,
			Sources:     cli.EnvVars("REFHOOK_INTERNAL_API_SECRET"),
		},
	}
}
