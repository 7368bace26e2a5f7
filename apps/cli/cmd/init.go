package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/httpvcr/packages/core/config"
	"github.com/abdul-hamid-achik/httpvcr/packages/filter"
	"github.com/abdul-hamid-achik/httpvcr/packages/vcr"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Create an httpvcr.yaml config file",
	Long: `Create an httpvcr.yaml config file with commented defaults.

Examples:
  httpvcr init
  httpvcr init --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing file")
}

func initCommand(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	path := filepath.Join(dir, "httpvcr.yaml")

	if !forceInit {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s (use --force to overwrite)", path)
		}
	}

	f := &config.File{
		FixtureDir: filepath.Join("fixtures", "generated"),
		Mode:       string(vcr.ModeCache),
		Options: config.Options{
			Verbose:            config.BoolPtr(false),
			TouchHits:          config.BoolPtr(true),
			IncludeHeaderNames: config.BoolPtr(true),
			IncludeCookieNames: config.BoolPtr(true),
		},
		Filters: []config.FilterSpec{
			{URL: "/health", ForceLive: true},
			{
				URL:        ".*",
				URLReplace: []filter.Replacement{{Pattern: `([?&])(timestamp|_)=\d+`, Replacement: "$1"}},
			},
		},
	}
	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", path)
	return nil
}
