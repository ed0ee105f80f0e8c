package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mvahmadali/CrashAnalytix/internal/collage"
)

func collageCommand(rt *runtime) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "collage <dir>",
		Short: "Compose every image of a directory into one collage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = filepath.Join(rt.cfg.Collage.OutputDir, "accident_snapshot_collage.jpg")
			}

			grid, err := collage.ComposeDir(args[0], out, collageOptions(rt.cfg.Collage))
			if err != nil {
				return err
			}

			rt.log.Info().
				Str("dir", args[0]).
				Int("cols", grid.Cols).
				Int("rows", grid.Rows).
				Msg("collage composed")
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default: <collage.output_dir>/accident_snapshot_collage.jpg)")
	return cmd
}
