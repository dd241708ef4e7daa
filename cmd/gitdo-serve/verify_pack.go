package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/gitdo/gitdo/ginternals/packfile"
)

var errBadPack = errors.New("packfile is invalid")

func newVerifyPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-pack FILE",
		Short: "Validate a packfile",
		Args:  cobra.ExactArgs(1),
	}

	walkDeltas := cmd.Flags().Bool("walk-deltas", true, "Also resolve the delta chains instead of only checking the framing.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrapf(err, "could not read %s", args[0])
		}

		report := packfile.Validate(data, *walkDeltas)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "objects: %d/%d\n", report.ObjectsParsed, report.ObjectCount)
		fmt.Fprintf(out, "checksum: %s\n", report.Checksum.String())
		if report.Valid {
			fmt.Fprintln(out, "ok")
			return nil
		}
		for _, problem := range report.Problems {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", problem)
		}
		return errors.Wrapf(errBadPack, "%s", args[0])
	}
	return cmd
}
