package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkilian/sds/internal/catalog"
	"github.com/arkilian/sds/internal/sample"
	"github.com/arkilian/sds/internal/service"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Run the wave walkthrough against an in-process store",
	Long: `Sample creates wave types, streams and stream views, exercises every data
operation, and deletes everything it created; cleanup runs even after a
failed step and reports each deletion.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(catalog.New(catalog.WithLogger(logger)), service.WithLogger(logger))
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sds sample walkthrough\n\n")

		results, err := sample.Run(cmd.Context(), svc, out)
		if err != nil {
			return err
		}
		for _, r := range results {
			if !r.OK() {
				return fmt.Errorf("cleanup of %s %s failed: %w", r.Kind, r.ID, r.Err)
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sds",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sds version %s (commit: %s)\n", version, commit)
	},
}

var (
	version = "dev"
	commit  = "unknown"
)

func init() {
	rootCmd.AddCommand(sampleCmd, versionCmd)
}
