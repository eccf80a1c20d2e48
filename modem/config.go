package modem

import (
	"time"

	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/at/command"
)

const (
	DefaultCommandTimeout   = 5 * time.Second
	DefaultPowerUpDelay     = 10 * time.Second
	DefaultUnsolicitedQueue = 32
	WakeSettle              = 50 * time.Millisecond
)

type Config struct {
	// BufferSize bounds reply frame, command line and unsolicited read chunk.
	BufferSize       int
	CommandTimeout   time.Duration
	PowerUpDelay     time.Duration
	UnsolicitedQueue int
	// Pushes lists line prefixes extracted from reply frames into inbox.
	Pushes []string
}

func (self Config) withDefaults() Config {
	if self.BufferSize == 0 {
		self.BufferSize = at.DefaultBufferSize
	}
	if self.BufferSize < at.MinBufferSize {
		self.BufferSize = at.MinBufferSize
	}
	if self.CommandTimeout <= 0 {
		self.CommandTimeout = DefaultCommandTimeout
	}
	if self.PowerUpDelay < 0 {
		self.PowerUpDelay = 0
	} else if self.PowerUpDelay == 0 {
		self.PowerUpDelay = DefaultPowerUpDelay
	}
	if self.UnsolicitedQueue <= 0 {
		self.UnsolicitedQueue = DefaultUnsolicitedQueue
	}
	if self.Pushes == nil {
		self.Pushes = command.Prefixes
	}
	return self
}
