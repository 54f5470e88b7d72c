package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stamzoek/stamzoek/pkg/version"
)

type versionOptions struct {
	short      bool
	jsonOutput bool
}

func newVersionCmd() *cobra.Command {
	opts := &versionOptions{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.short, "short", false, "Print only the version number")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print version information as JSON")

	return cmd
}

func runVersion(cmd *cobra.Command, opts *versionOptions) error {
	out := cmd.OutOrStdout()

	switch {
	case opts.jsonOutput:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(version.GetInfo())
	case opts.short:
		fmt.Fprintln(out, version.Short())
	default:
		fmt.Fprintln(out, version.String())
	}
	return nil
}
