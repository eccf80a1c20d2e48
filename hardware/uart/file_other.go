//go:build !linux

package uart

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/log2"
)

func NewFileUart(log *log2.Log, poll time.Duration) (Uarter, error) {
	return nil, errors.NotSupportedf("uart driver=file on this platform")
}
