package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns the process logger. Unknown levels fall back to info.
func New(level, environment string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if environment == "development" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}
