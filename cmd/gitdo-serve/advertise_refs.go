package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/gitdo/gitdo/internal/errutil"
	"github.com/gitdo/gitdo/protocol"
)

func newAdvertiseRefsCmd(cfg *serveConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advertise-refs [DIR]",
		Short: "Print the reference advertisement of a repository",
		Args:  cobra.MaximumNArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		s, err := loadStore(cfg, args)
		if err != nil {
			return err
		}
		defer errutil.Close(s, &err)

		err = protocol.AdvertiseRefs(s, protocol.ServerCapabilities(), cmd.OutOrStdout())
		return errors.Wrap(err, "could not advertise the references")
	}
	return cmd
}
