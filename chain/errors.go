package chain

import "github.com/pkg/errors"

func errf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}
