package utils // import "github.com/shellboxhq/shellbox/utils"

import (
	"fmt"
)

// The following two functions exist so that we don't have to import `fmt` into
// any other packages (so we don't accidentally log something using `fmt`
// functions instead of using the `shellboxlogger` equivalents that send
// information to logz.io and Sentry).

// Sprintf creates a string from format string and args.
func Sprintf(format string, v ...interface{}) string {
	return fmt.Sprintf(format, v...)
}

// MakeError creates an error from format string and args.
func MakeError(format string, v ...interface{}) error {
	return fmt.Errorf(format, v...)
}
