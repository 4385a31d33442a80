package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dbviz/cli/render"
	"github.com/pithecene-io/dbviz/iox"
	"github.com/pithecene-io/dbviz/registry"
)

// ArtifactsCommand returns the artifacts command with subcommands.
// It reads the derived-artifact registry and never writes to it.
func ArtifactsCommand() *cli.Command {
	return &cli.Command{
		Name:  "artifacts",
		Usage: "Inspect registered derived artifacts",
		Subcommands: []*cli.Command{
			artifactsListCommand(),
			artifactsGetCommand(),
		},
	}
}

func artifactFlags() []cli.Flag {
	flags := []cli.Flag{ConfigFlag}
	flags = append(flags, ReadOnlyFlags()...)
	flags = append(flags, storageFlags()...)
	return append(flags, registryFlags()...)
}

func artifactsListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List every registered artifact",
		Flags:  artifactFlags(),
		Action: artifactsListAction,
	}
}

func artifactsListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	store, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(store)

	list, err := store.List(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to list artifacts: %v", err), exitFramework)
	}
	return r.Render(list)
}

func artifactsGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show the artifact derived from one leaf",
		ArgsUsage: "<source-item-path>",
		Flags:     artifactFlags(),
		Action:    artifactsGetAction,
	}
}

func artifactsGetAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("source-item-path required", exitInvalidInput)
	}
	path := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	store, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(store)

	a, err := store.Get(c.Context, path)
	if errors.Is(err, registry.ErrNotFound) {
		return cli.Exit(err.Error(), exitItemFailure)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read artifact: %v", err), exitFramework)
	}
	return r.Render(a)
}

func openRegistry(c *cli.Context) (registry.Store, error) {
	cfg, err := loadStorageConfig(c)
	if err != nil {
		return nil, err
	}
	store, err := buildRegistry(c.Context, cfg)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to open registry: %v", err), exitFramework)
	}
	return store, nil
}
