package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tether/config"
)

func init() {
	serversCmd.AddCommand(serversListCmd, serversToolsCmd, serversEnableCmd, serversDisableCmd)
	rootCmd.AddCommand(serversCmd)
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Inspect and manage configured MCP servers",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured servers and their status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tENABLED\tTRANSPORT\tTARGET")
		for _, entry := range cfg.Servers {
			target := entry.Command
			transport := "stdio"
			if entry.URL != "" {
				target = entry.URL
				transport = entry.Transport
				if transport == "" {
					transport = "sse"
				}
			}
			fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", entry.ID, entry.Enabled, transport, target)
		}
		return w.Flush()
	},
}

var serversToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Connect to the enabled servers and list the aggregated tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		catalog := a.manager.Catalog()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOOL\tSERVER\tDESCRIPTION")
		for _, tool := range catalog.Tools() {
			owner, _ := catalog.Owner(tool.Name)
			fmt.Fprintf(w, "%s\t%s\t%s\n", tool.Name, owner, tool.Description)
		}
		return w.Flush()
	},
}

var serversEnableCmd = &cobra.Command{
	Use:   "enable [id]",
	Short: "Enable a configured server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setServerEnabled(args[0], true)
	},
}

var serversDisableCmd = &cobra.Command{
	Use:   "disable [id]",
	Short: "Disable a configured server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setServerEnabled(args[0], false)
	},
}

func setServerEnabled(serverID string, enabled bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return config.SetServerEnabled(cfg.DataDir(), serverID, enabled)
}
