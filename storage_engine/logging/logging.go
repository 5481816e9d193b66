// Package logging centralizes the structured logger every storage_engine
// component pulls its per-package entry from.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetLevel adjusts verbosity for the whole process; the CLI's -v flag calls
// this once at startup.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// For returns a logger pre-tagged with component=name, e.g. For("disk"),
// For("buffer"), For("btree"), For("catalog").
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}
