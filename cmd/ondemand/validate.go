package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	apihttp "github.com/artpar/ondemand/adapters/http"
	"github.com/artpar/ondemand/config"
	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/dialect"
	"github.com/artpar/ondemand/core/schema"
	"github.com/artpar/ondemand/core/storage"
)

var validateCmd = &cobra.Command{
	Use:   "validate [model-file...]",
	Short: "Validate configuration and model definitions",
	Long: `Validate the ondemand configuration and, optionally, model
definition files (JSON or YAML) without touching the database.

Checks:
  - Configuration loads and is valid
  - Each model definition parses and passes validation
  - The table each model would create (with --sql)

Examples:
  ondemand validate
  ondemand validate book.yaml author.json --sql`,
	RunE: runValidate,
}

var (
	validateShowSQL bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateShowSQL, "sql", false, "print the CREATE TABLE statement for each model")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Configuration valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Configuration valid\n", checkMark)
	fmt.Fprintf(out, "  %s Database: %s\n", checkMark, cfg.Database.Driver)
	fmt.Fprintf(out, "  %s Artifacts: %s\n", checkMark, cfg.Artifacts.Driver)

	d, err := dialect.For(cfg.Database.Driver)
	if err != nil {
		return err
	}
	reserved := append(apihttp.ReservedNames(cfg.Metrics.Path), d.ReservedNames()...)

	failed := 0
	for _, path := range args {
		if err := validateModelFile(out, path, d, reserved); err != nil {
			fmt.Fprintf(out, "  %s %s\n", crossMark, path)
			fmt.Fprintf(out, "      Error: %v\n", err)
			failed++
		}
	}

	fmt.Fprintln(out)
	if failed > 0 {
		return fmt.Errorf("%d of %d model definitions invalid", failed, len(args))
	}
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func validateModelFile(out io.Writer, path string, d dialect.Dialect, reserved []string) error {
	def, err := schema.ParseFile(path)
	if err != nil {
		return err
	}
	if err := schema.Validate(def, reserved...); err != nil {
		return err
	}
	desc, err := convention.Derive(def)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s %s: model %s at %s (%d fields)\n", checkMark, path, desc.Name, desc.Prefix, len(desc.Fields))
	if validateShowSQL {
		fmt.Fprintf(out, "\n%s\n\n", storage.BuildCreateTableSQL(d, desc))
	}
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
