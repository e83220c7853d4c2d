package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/artpar/ondemand/adapters/database"
	"github.com/artpar/ondemand/bootstrap"
	"github.com/artpar/ondemand/config"
	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/ports"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models recorded in the artifact store",
	Long: `List every model that will be mounted when the server starts,
in discovery order, with where it was recorded.

Examples:
  ondemand models
  ondemand models --config /etc/ondemand/config.yaml`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// The database driver may share the main database.
	var db *database.DB
	if cfg.Artifacts.Driver == "database" && cfg.Artifacts.DSN == "" {
		db, err = database.Open(ctx, database.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
		if err != nil {
			return err
		}
		defer db.Close()
	}

	stores, err := bootstrap.OpenArtifacts(cfg.Artifacts, db)
	if err != nil {
		return err
	}
	defer stores.Close()

	manifest, err := stores.Manifest.Names(ctx)
	if err != nil {
		return err
	}
	stored, err := stores.Store.Names(ctx)
	if err != nil {
		return err
	}

	inManifest := make(map[string]bool, len(manifest))
	for _, n := range manifest {
		inManifest[n] = true
	}

	var names []string
	seen := make(map[string]bool)
	for _, n := range append(manifest, stored...) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintf(out, "No models in %s\n", stores.Location)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENDPOINT\tFIELDS\tMANIFEST\tSTATUS")
	for _, n := range names {
		endpoint, fields, status := describe(cmd, stores.Store, n)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", n, endpoint, fields, yesNo(inManifest[n]), status)
	}
	return w.Flush()
}

func describe(cmd *cobra.Command, store ports.ArtifactStore, name string) (endpoint, fields, status string) {
	a, err := store.Load(cmd.Context(), name)
	if errors.Is(err, ports.ErrArtifactNotFound) {
		return "-", "-", "missing artifact"
	}
	if err != nil {
		return "-", "-", err.Error()
	}

	desc, err := convention.Derive(a.Model.Definition)
	if err != nil {
		return "-", "-", err.Error()
	}
	return desc.Prefix, fmt.Sprint(len(desc.Fields)), "ok"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
