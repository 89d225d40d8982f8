// Package message prints progress for the person running the audit. Info and
// Success go to stdout and are silenced by quiet mode; Warning and Error go to
// stderr and are always shown. Diagnostics belong in slog, not here.
package message

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/praetorian-inc/diskaudit/version"
)

var (
	quiet     bool
	noColor   bool
	mutex     sync.RWMutex
	outWriter io.Writer = os.Stdout
	errWriter io.Writer = os.Stderr

	infoColor    = color.New(color.FgCyan)
	fieldColor   = color.New(color.FgHiBlack)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	sectionColor = color.New(color.FgHiMagenta, color.Bold)
)

// SetQuiet enables/disables user messages
func SetQuiet(q bool) {
	mutex.Lock()
	defer mutex.Unlock()
	quiet = q
}

// SetNoColor enables/disables colored output
func SetNoColor(nc bool) {
	mutex.Lock()
	defer mutex.Unlock()
	noColor = nc
	color.NoColor = nc
}

// SetOutput sends every message, warnings and errors included, to w.
func SetOutput(w io.Writer) {
	mutex.Lock()
	defer mutex.Unlock()
	outWriter = w
	errWriter = w
}

// SetErrorOutput redirects only warnings and errors.
func SetErrorOutput(w io.Writer) {
	mutex.Lock()
	defer mutex.Unlock()
	errWriter = w
}

func printf(toErr bool, c *color.Color, prefix, format string, args ...interface{}) {
	mutex.RLock()
	defer mutex.RUnlock()

	w := outWriter
	if toErr {
		w = errWriter
	}
	msg := fmt.Sprintf(format, args...)
	if noColor {
		fmt.Fprintf(w, "%s%s\n", prefix, msg)
	} else {
		c.Fprintf(w, "%s%s\n", prefix, msg)
	}
}

func isQuiet() bool {
	mutex.RLock()
	defer mutex.RUnlock()
	return quiet
}

// Info prints an informational message unless quiet mode is enabled
func Info(format string, args ...interface{}) {
	if isQuiet() {
		return
	}
	printf(false, infoColor, "[*] ", format, args...)
}

// Success prints a success message unless quiet mode is enabled
func Success(format string, args ...interface{}) {
	if isQuiet() {
		return
	}
	printf(false, successColor, "[+] ", format, args...)
}

// Warning prints a warning message. Never suppressed.
func Warning(format string, args ...interface{}) {
	printf(true, warningColor, "[!] ", format, args...)
}

// Error prints an error message. Never suppressed.
func Error(format string, args ...interface{}) {
	printf(true, errorColor, "[-] ", format, args...)
}

// Field prints an indented "label: value" line under the previous message.
func Field(label, format string, args ...interface{}) {
	if isQuiet() {
		return
	}
	printf(false, fieldColor, "    "+label+": ", format, args...)
}

// Section prints a section header
func Section(format string, args ...interface{}) {
	if isQuiet() {
		return
	}

	mutex.RLock()
	defer mutex.RUnlock()

	msg := fmt.Sprintf(format, args...)
	if noColor {
		fmt.Fprintf(outWriter, "\n-=[%s]=-\n\n", msg)
	} else {
		sectionColor.Fprintf(outWriter, "\n-=[%s]=-\n\n", msg)
	}
}

// Banner prints the tool name and version
func Banner() {
	Section("diskaudit %s", version.AbbreviatedVersion())
}
