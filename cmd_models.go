package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tether/config"
	"tether/provider"
)

func init() {
	rootCmd.AddCommand(modelsCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the selected provider offers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		providerID := flagProvider
		if providerID == "" {
			providerID = cfg.DefaultProvider
		}
		providerCfg, err := cfg.ProviderConfigFor(providerID)
		if err != nil {
			return err
		}
		prov, err := provider.NewProvider(providerCfg)
		if err != nil {
			return err
		}

		if err := prov.Ping(ctx); err != nil {
			return fmt.Errorf("provider unreachable: %w", err)
		}

		models, err := prov.ListModels(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE")
		for _, m := range models {
			size := ""
			if m.Size > 0 {
				size = fmt.Sprintf("%.1f GB", float64(m.Size)/(1<<30))
			}
			fmt.Fprintf(w, "%s\t%s\n", m.Name, size)
		}
		return w.Flush()
	},
}
