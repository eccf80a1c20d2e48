package command

import "github.com/juju/errors"

func errNotValid(what string, v interface{}) error {
	return errors.NotValidf("%s=%v", what, v)
}
