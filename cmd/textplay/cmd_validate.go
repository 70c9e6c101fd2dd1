package main

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/spboyer/textplay/internal/projectconfig"
	"github.com/spboyer/textplay/internal/validation"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Check a .textplay.yaml file and its game script",
		Long: `Validate a project config file against the config schema. When the config
names a scripted game, the script is validated against the script schema too.

Without an argument the nearest .textplay.yaml above the current directory is
used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: validateCommandE,
	}
}

func validateCommandE(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg, err := projectconfig.Load(wd)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Path == "" {
			return fmt.Errorf("no %s found in %s or its parents", projectconfig.FileName, wd)
		}
		path = cfg.Path
	}

	configErrs, scriptErrs, err := validation.ValidateConfigFile(path)
	if err != nil {
		return err
	}

	rel := path
	if wd, err := os.Getwd(); err == nil {
		if r, err := filepath.Rel(wd, path); err == nil {
			rel = r
		}
	}

	if len(configErrs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s\n", rel)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "❌ %s\n", rel)
		for _, e := range configErrs {
			fmt.Fprintf(cmd.OutOrStdout(), "   %s\n", e)
		}
	}

	for _, script := range slices.Sorted(maps.Keys(scriptErrs)) {
		fmt.Fprintf(cmd.OutOrStdout(), "❌ %s\n", script)
		for _, e := range scriptErrs[script] {
			fmt.Fprintf(cmd.OutOrStdout(), "   %s\n", e)
		}
	}

	if len(configErrs) > 0 || len(scriptErrs) > 0 {
		return errors.New("validation failed")
	}
	return nil
}
