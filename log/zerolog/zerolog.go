// Package zerolog adapts a zerolog.Logger to slcache.Logger.
package zerolog

import (
	"github.com/rs/zerolog"
	"github.com/unkn0wn-root/slcache"
)

var _ slcache.Logger = Logger{}

type Logger struct{ L zerolog.Logger }

// New adds component=slcache to every event.
func New(l zerolog.Logger) Logger {
	return Logger{L: l.With().Str("component", "slcache").Logger()}
}

func (z Logger) Debug(msg string, f slcache.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f slcache.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f slcache.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f slcache.Fields) { emit(z.L.Error(), msg, f) }

// emit is a no-op for disabled levels (e is nil).
func emit(e *zerolog.Event, msg string, f slcache.Fields) {
	if e == nil {
		return
	}
	for k, v := range f {
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
