package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func analyzeCommand(rt *runtime) *cobra.Command {
	var platesOnly bool

	cmd := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Run the accident pipeline on one clip and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, rt)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			var result interface{}
			if platesOnly {
				result, err = a.service.CheckPlates(ctx, f, filepath.Base(args[0]))
			} else {
				result, err = a.service.CheckVideo(ctx, f, filepath.Base(args[0]))
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().BoolVar(&platesOnly, "plates", false, "run only the license plate recognizer")
	return cmd
}
