// Package logging owns the process-wide logrus logger. Packages ask for a
// component-scoped entry with New and never configure logrus themselves.
package logging

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Setter adjusts the root logger.
type Setter func(*logrus.Logger) error

var root = struct {
	logger *logrus.Logger
	mutex  *sync.Mutex
}{
	logger: newRootLogger(),
	mutex:  &sync.Mutex{},
}

// Logger is the interface handed to components.
type Logger interface {
	logrus.FieldLogger
}

func newRootLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	return l
}

// New returns a logger tagged with the component name.
func New(component string, setters ...Setter) Logger {
	for _, setter := range setters {
		// no errors handling for now
		_ = Set(setter)
	}
	return root.logger.WithField("component", component)
}

// Set applies a setter to the root logger.
func Set(setter Setter) error {
	root.mutex.Lock()
	err := setter(root.logger)
	root.mutex.Unlock()
	return err
}

// Level sets the minimum level; unparseable levels fall back to debug.
func Level(lvl string) Setter {
	l, err := logrus.ParseLevel(lvl)
	if err != nil {
		root.logger.WithError(err).Errorf("unable to parse provided level %q", lvl)
		l = logrus.DebugLevel
	}
	return func(r *logrus.Logger) error {
		r.SetLevel(l)
		return nil
	}
}

// Output redirects log output.
func Output(w io.Writer) Setter {
	return func(r *logrus.Logger) error {
		r.SetOutput(w)
		return nil
	}
}

// Discard returns a logger that drops everything, for tests and quiet callers.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
