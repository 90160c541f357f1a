package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Config interface {
	TickInterval() time.Duration
	ResampleInterval() time.Duration
	RelockDelay() time.Duration
	HistoryLimit() int
	Sampler() string
	ResetSchedule() string
	AllowNonRootAccess() bool

	SetResetSchedule(string)
	SetAllowNonRootAccess(bool)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Reload reads the configuration from the source and passes it to check.
	// The current values are replaced only if check returns nil.
	Reload(check func(Config) error) error
	// Save saves the configuration to the source.
	Save() error
}
