package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dbviz/cli/render"
	"github.com/pithecene-io/dbviz/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionCommand returns the version command.
// It must not contact the converter or any storage.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), exitInvalidInput)
		}
		return r.Render(VersionResponse{
			Name:    types.Name,
			Version: types.Version,
			Commit:  commit,
		})
	}
}
