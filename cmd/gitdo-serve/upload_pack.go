package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/gitdo/gitdo/ginternals/packfile"
	"github.com/gitdo/gitdo/internal/errutil"
	"github.com/gitdo/gitdo/protocol"
)

func newUploadPackCmd(cfg *serveConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload-pack [DIR]",
		Short: "Send objects packed back to a fetch client",
		Long: "Reads a fetch request on stdin and writes the negotiation " +
			"and the packfile on stdout. Invoked by the remote side of a " +
			"fetch over ssh or a custom transport.",
		Args: cobra.MaximumNArgs(1),
	}

	advertiseOnly := cmd.Flags().Bool("advertise-refs", false, "Only print the reference advertisement and exit.")
	statelessRPC := cmd.Flags().Bool("stateless-rpc", false, "Serve a single request/response exchange, without the initial advertisement.")

	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		s, err := loadStore(cfg, args)
		if err != nil {
			return err
		}
		defer errutil.Close(s, &err)

		caps := protocol.ServerCapabilities()
		if !*statelessRPC {
			if err = protocol.AdvertiseRefs(s, caps, cmd.OutOrStdout()); err != nil {
				return errors.Wrap(err, "could not advertise the references")
			}
			if *advertiseOnly {
				return nil
			}
		}

		repoConf := s.Config()
		opts := protocol.UploadPackOptions{
			Caps: caps,
			Pack: packfile.Options{
				Window:           repoConf.PackWindow(),
				MaxDeltaDepth:    repoConf.PackDepth(),
				CompressionLevel: repoConf.PackCompression(),
			},
		}
		err = protocol.UploadPack(cmd.Context(), s, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		return errors.Wrap(err, "fetch session failed")
	}
	return cmd
}
