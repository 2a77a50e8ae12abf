package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/reconai/stategate/internal/envelope"
	"github.com/reconai/stategate/internal/uistate"
)

var validateCmd = &cobra.Command{
	Use:   "validate <domain> <file>",
	Short: "Validate an envelope JSON file against a domain contract",
	Long:  "Reads a raw envelope from file (or - for stdin), validates it against the domain's contract schema, and prints the derived render state. Exits non-zero on a contract violation.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, path := args[0], args[1]

		schema, err := envelope.SchemaFor(domain)
		if err != nil {
			return err
		}

		raw, err := readInput(path)
		if err != nil {
			return err
		}

		env, err := envelope.Validate(raw, schema)
		if err != nil {
			// Print the fail-closed state the UI would render, then
			// fail the command.
			if perr := printJSON(uistate.FromError(domain, err)); perr != nil {
				return perr
			}
			return err
		}

		return printJSON(uistate.FromEnvelope(schema, env))
	},
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(os.Stdin)
		return raw, eris.Wrap(err, "read stdin")
	}
	raw, err := os.ReadFile(path)
	return raw, eris.Wrapf(err, "read %s", path)
}

func errUnknownDomain(domain string) error {
	return eris.Errorf("unknown domain %q (known: core, cfo, intelligence)", domain)
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
