package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reconai/stategate/internal/envelope"
	"github.com/reconai/stategate/internal/envtest"
)

var (
	fixtureBroken    string
	fixtureLifecycle string
	fixtureFormat    string
)

var fixtureCmd = &cobra.Command{
	Use:   "fixture <domain>",
	Short: "Emit an envelope fixture for seeding backend mocks",
	Long:  "Prints a valid-by-construction envelope for the domain, or a deliberately broken one with --broken, as JSON or YAML.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := args[0]
		if _, err := envelope.SchemaFor(domain); err != nil {
			return errUnknownDomain(domain)
		}

		raw, err := buildFixture(domain)
		if err != nil {
			return err
		}

		switch fixtureFormat {
		case "json":
			var buf any
			if err := json.Unmarshal(raw, &buf); err != nil {
				return eris.Wrap(err, "reparse fixture")
			}
			return printJSON(buf)
		case "yaml":
			var buf any
			if err := json.Unmarshal(raw, &buf); err != nil {
				return eris.Wrap(err, "reparse fixture")
			}
			return yaml.NewEncoder(os.Stdout).Encode(buf)
		default:
			return eris.Errorf("unknown format %q (json or yaml)", fixtureFormat)
		}
	},
}

func buildFixture(domain string) ([]byte, error) {
	if fixtureBroken != "" {
		// Invalid panics on unknown mutations; surface that as a
		// command error instead.
		var raw []byte
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%v", r)
				}
			}()
			raw = envtest.Invalid(domain, envtest.Mutation(fixtureBroken))
			return nil
		}()
		return raw, err
	}

	var overrides []envtest.Override
	if fixtureLifecycle != "" {
		overrides = append(overrides, envtest.WithLifecycle(envelope.Lifecycle(fixtureLifecycle)))
	}

	var raw []byte
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%v", r)
			}
		}()
		raw = envtest.Valid(domain, overrides...)
		return nil
	}()
	return raw, err
}

func init() {
	fixtureCmd.Flags().StringVar(&fixtureBroken, "broken", "", "emit a broken fixture with the named mutation (e.g. unknown_version)")
	fixtureCmd.Flags().StringVar(&fixtureLifecycle, "lifecycle", "", "lifecycle for the valid fixture (success, pending, failed, stale)")
	fixtureCmd.Flags().StringVar(&fixtureFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(fixtureCmd)
}
