package main

import (
	"fmt"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
)

// 构建时通过 -ldflags "-X main.version=... -X main.commit=..." 注入
var (
	version = "dev"
	commit  = "none"
)

const (
	outputFlagName     = "output"
	outputFlagValJSON  = "json"
	outputFlagValHuman = "human"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the arena version",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := cmd.Flags().GetString(outputFlagName)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			switch output {
			case outputFlagValHuman:
				_, err = fmt.Fprintf(w, "arena %s (%s)\n", version, commit)
				return err
			case outputFlagValJSON:
				b, err := json.Marshal(struct {
					Version string `json:"version"`
					Hash    string `json:"hash"`
				}{Version: version, Hash: commit})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(b))
				return err
			default:
				return fmt.Errorf("%s flag must be either %q or %q", outputFlagName, outputFlagValHuman, outputFlagValJSON)
			}
		},
	}
	cmd.Flags().String(outputFlagName, outputFlagValHuman, "Specify the output format: json,human")
	return cmd
}
