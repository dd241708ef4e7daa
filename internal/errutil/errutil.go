// Package errutil contains methods to simplify working with errors
package errutil

import "io"

// Close closes the closer and stores its error in err, unless err
// already holds one. Meant to be deferred with a named return:
//
//	defer errutil.Close(f, &err)
func Close(c io.Closer, err *error) {
	closeErr := c.Close()
	if *err == nil {
		*err = closeErr
	}
}
