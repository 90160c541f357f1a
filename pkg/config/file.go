package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smilelock/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		TickIntervalMillis:     ptr.To(100),
		ResampleIntervalMillis: ptr.To(500),
		RelockDelaySeconds:     ptr.To(30),
		HistoryLimit:           ptr.To(10),
		Sampler:                ptr.To("random"),
		// Scheduled resets are off unless the user asks for them.
		ResetSchedule:      ptr.To(""),
		AllowNonRootAccess: ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

// Path returns the file backing this config.
func (f *File) Path() string {
	return f.filepath
}

type RawFileConfig struct {
	TickIntervalMillis     *int    `json:"tickIntervalMillis,omitempty"`
	ResampleIntervalMillis *int    `json:"resampleIntervalMillis,omitempty"`
	RelockDelaySeconds     *int    `json:"relockDelaySeconds,omitempty"`
	HistoryLimit           *int    `json:"historyLimit,omitempty"`
	Sampler                *string `json:"sampler,omitempty"`
	ResetSchedule          *string `json:"resetSchedule,omitempty"`
	AllowNonRootAccess     *bool   `json:"allowNonRootAccess,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	return &RawFileConfig{
		TickIntervalMillis:     ptr.To(int(c.TickInterval() / time.Millisecond)),
		ResampleIntervalMillis: ptr.To(int(c.ResampleInterval() / time.Millisecond)),
		RelockDelaySeconds:     ptr.To(int(c.RelockDelay() / time.Second)),
		HistoryLimit:           ptr.To(c.HistoryLimit()),
		Sampler:                ptr.To(c.Sampler()),
		ResetSchedule:          ptr.To(c.ResetSchedule()),
		AllowNonRootAccess:     ptr.To(c.AllowNonRootAccess()),
	}, nil
}

// valueOr returns *v, or *def if v is unset.
func valueOr[T any](v, def *T) T {
	if v != nil {
		return *v
	}
	return *def
}

// positiveOr is valueOr for fields where zero or negative means unset.
func positiveOr(v, def *int) int {
	if v != nil && *v > 0 {
		return *v
	}
	return *def
}

func (f *File) TickInterval() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return time.Duration(positiveOr(f.c.TickIntervalMillis, defaultFileConfig.TickIntervalMillis)) * time.Millisecond
}

func (f *File) ResampleInterval() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return time.Duration(positiveOr(f.c.ResampleIntervalMillis, defaultFileConfig.ResampleIntervalMillis)) * time.Millisecond
}

func (f *File) RelockDelay() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return time.Duration(positiveOr(f.c.RelockDelaySeconds, defaultFileConfig.RelockDelaySeconds)) * time.Second
}

func (f *File) HistoryLimit() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return positiveOr(f.c.HistoryLimit, defaultFileConfig.HistoryLimit)
}

func (f *File) Sampler() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	s := valueOr(f.c.Sampler, defaultFileConfig.Sampler)
	if s == "" {
		return *defaultFileConfig.Sampler
	}
	return s
}

func (f *File) ResetSchedule() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return valueOr(f.c.ResetSchedule, defaultFileConfig.ResetSchedule)
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return valueOr(f.c.AllowNonRootAccess, defaultFileConfig.AllowNonRootAccess)
}

func (f *File) SetResetSchedule(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.ResetSchedule = &s
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Reload(check func(Config) error) error {
	next := &File{
		filepath: f.filepath,
		mu:       &sync.RWMutex{},
	}
	if err := next.Load(); err != nil {
		return err
	}
	if check != nil {
		if err := check(next); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c = next.c

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	b, err := json.MarshalIndent(f.c, "", "  ")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config for file %s", f.filepath)
	}

	// The daemon watches this file. Replace it atomically.
	err = renameio.WriteFile(f.filepath, append(b, '\n'), 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"tickInterval":       f.TickInterval().String(),
		"resampleInterval":   f.ResampleInterval().String(),
		"relockDelay":        f.RelockDelay().String(),
		"historyLimit":       f.HistoryLimit(),
		"sampler":            f.Sampler(),
		"resetSchedule":      f.ResetSchedule(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
	}
}
