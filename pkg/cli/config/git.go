package config

import (
	"github.com/m-mizutani/refhook/pkg/infra/git"
	"github.com/urfave/cli/v3"
)

// Git holds repository storage configuration
type Git struct {
	StorageRoot string
}

// Flags returns CLI flags for repository storage
func (c *Git) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "git-storage-root",
			Usage:       "Directory relative repository paths are resolved against",
			Destination: &c.StorageRoot,
			Sources:     cli.EnvVars("REFHOOK_GIT_STORAGE_ROOT"),
		},
	}
}

// Configure returns the repository opener
func (c *Git) Configure() *git.Opener {
	return git.NewOpener(git.WithStorageRoot(c.StorageRoot))
}
