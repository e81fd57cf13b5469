// Package logflags turns per-component debug logging on and off based on
// the --log and --log-output command line flags.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var jdwpWire = false
var hprof = false

var logOut io.WriteCloser

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New()
	logger.Formatter = &logrus.TextFormatter{}
	if logOut != nil {
		logger.Out = logOut
	} else {
		logger.Out = os.Stderr
	}
	logger.Level = logrus.DebugLevel
	if !flag {
		logger.Level = logrus.PanicLevel
	}
	return logger.WithFields(fields)
}

// JDWPWire returns true if the jdwp package should log every frame
// exchanged with the debuggee.
func JDWPWire() bool {
	return jdwpWire
}

// JDWPWireLogger returns a configured logger for the JDWP wire protocol.
func JDWPWireLogger() *logrus.Entry {
	return makeLogger(jdwpWire, logrus.Fields{"layer": "jdwp"})
}

// Hprof returns true if the heap snapshot reader should log the records
// it parses.
func Hprof() bool {
	return hprof
}

// HprofLogger returns a configured logger for the heap snapshot reader.
func HprofLogger() *logrus.Entry {
	return makeLogger(hprof, logrus.Fields{"layer": "hprof"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the logging flags based on the contents of logstr. If
// logDest is not empty logs are redirected there: either a file path or
// the number of an already open file descriptor.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "jdb-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "jdwp"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "jdwp":
			jdwpWire = true
		case "hprof":
			hprof = true
		}
	}
	return nil
}

// Close closes the logger output redirection file, if one was set up by
// Setup.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}
