package main

import (
	"fmt"
	"io"
	"os"

	"github.com/op/go-logging"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// CreateLogger sets the backend of all go-logging loggers and returns the
// logger of module. Output goes to w, else to logfile, else to stderr. The
// returned closer closes logfile.
func CreateLogger(module, logfile string, w io.Writer, loglevel, logformat string) (*logging.Logger, io.Closer) {
	log := logging.MustGetLogger(module)
	var lf io.Closer = nopCloser{}
	if w == nil {
		w = os.Stderr
		if logfile != "" {
			f, err := os.OpenFile(logfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				fmt.Fprintf(os.Stderr, "cannot open logfile %s: %v\n", logfile, err)
			} else {
				w, lf = f, f
			}
		}
	}
	backend := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(logformat))
	leveled := logging.AddModuleLevel(formatted)
	level, err := logging.LogLevel(loglevel)
	if err != nil {
		level = logging.INFO
	}
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)
	return log, lf
}
