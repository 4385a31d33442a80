// Package cmd provides the commands of the dbviz binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes.
const (
	exitOK           = 0
	exitItemFailure  = 1
	exitFramework    = 2
	exitInvalidInput = 3
)

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored table output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// ConfigFlag points at a dbviz.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to dbviz.yaml",
		EnvVars: []string{"DBVIZ_CONFIG"},
	}
)

// ReadOnlyFlags returns the flags shared by every command that only
// renders data.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag}
}

// storageFlags override the report dataset location.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Report storage backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Report storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for the s3 backend",
		},
		&cli.StringFlag{
			Name:  "dataset",
			Usage: "Lode dataset ID",
		},
	}
}

// registryFlags override the derived-artifact registry.
func registryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "registry-backend",
			Usage: "Artifact registry backend: lode, sqlite, postgres or memory",
		},
		&cli.StringFlag{
			Name:  "registry-path",
			Usage: "sqlite file, or lode root for the lode registry",
		},
		&cli.StringFlag{
			Name:    "registry-dsn",
			Usage:   "Postgres DSN",
			EnvVars: []string{"DBVIZ_REGISTRY_DSN"},
		},
	}
}
