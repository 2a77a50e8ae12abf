package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var fetchWithAudit bool

var fetchCmd = &cobra.Command{
	Use:   "fetch <domain>",
	Short: "Fetch one domain envelope and print its derived render state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initGate(cmd.Context(), cfg, fetchWithAudit)
		if err != nil {
			return err
		}
		defer env.Close()

		p, ok := env.Registry.Get(args[0])
		if !ok {
			return errUnknownDomain(args[0])
		}

		state := p.Refresh(cmd.Context())
		return printJSON(state)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchWithAudit, "audit", false, "record the fetch outcome to the audit store")
	rootCmd.AddCommand(fetchCmd)
}
