package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/gitdo/gitdo/backend/fsstore"
	"github.com/gitdo/gitdo/ginternals/config"
	"github.com/gitdo/gitdo/internal/env"
	"github.com/gitdo/gitdo/internal/pathutil"
)

type serveConfig struct {
	e *env.Env
	// gitDir is the value of --git-dir, overriding $GIT_DIR
	gitDir *pathutil.PathValue
}

func newRootCmd(e *env.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gitdo-serve",
		Short:         "Serve git repositories over the smart transfer protocol",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cfg := &serveConfig{
		e:      e,
		gitDir: pathutil.NewDirPathFlagWithDefault(""),
	}
	cmd.PersistentFlags().Var(cfg.gitDir, "git-dir", "Path of the .git directory to serve, overriding $GIT_DIR.")

	cmd.AddCommand(newAdvertiseRefsCmd(cfg))
	cmd.AddCommand(newUploadPackCmd(cfg))
	cmd.AddCommand(newVerifyPackCmd())

	return cmd
}

// loadStore opens the repository. An explicit DIR argument takes
// over the --git-dir flag
func loadStore(cfg *serveConfig, args []string) (*fsstore.Store, error) {
	gitDirPath := cfg.gitDir.String()
	if len(args) > 0 {
		gitDirPath = args[0]
	}

	repoCfg := config.LoadConfig(cfg.e, config.LoadConfigOptions{
		GitDirPath: gitDirPath,
	})
	s, err := fsstore.New(repoCfg)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open repository at %s", repoCfg.GitDirPath)
	}
	return s, nil
}
