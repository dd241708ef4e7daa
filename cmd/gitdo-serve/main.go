// gitdo-serve is the server side of the git smart transfer protocol.
// It is meant to be spawned by a transport (sshd, a socket daemon, a
// CGI wrapper) with the repository path as argument, and speaks the
// protocol on stdin/stdout
package main

import (
	"fmt"
	"os"

	"github.com/gitdo/gitdo/internal/env"
)

func main() {
	root := newRootCmd(env.NewFromOs())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
