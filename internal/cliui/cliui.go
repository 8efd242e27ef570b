// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cliui is the terminal output surface cmd/ace prints through:
// section headers, labeled fields and status lines, consistently colored
// and consistently disabled when stdout isn't a terminal or the caller
// asked for plain text.
package cliui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Named colors, reused directly by callers that need to wrap a single
// word rather than print a whole line (color.Color.Sprint/.Printf).
var (
	Cyan   = color.New(color.FgCyan)
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Dim    = color.New(color.Faint)
)

// InitColors disables color output when noColor is set, when NO_COLOR is
// present in the environment, or when stdout isn't a terminal — the same
// three checks fatih/color's own color.NoColor default applies, made
// explicit so a --no-color flag and a piped stdout both behave the same
// way regardless of platform.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold section title.
func Header(title string) {
	bold := color.New(color.Bold)
	_, _ = bold.Println(title)
}

// SubHeader prints an indented, bold sub-section title.
func SubHeader(title string) {
	bold := color.New(color.Bold)
	_, _ = bold.Println("  " + title)
}

// Label returns s styled as a field label, for use inside a larger
// Printf-built line.
func Label(s string) string {
	return Dim.Sprint(s)
}

// DimText returns s styled as secondary, de-emphasized text.
func DimText(s string) string {
	return Dim.Sprint(s)
}

// CountText renders an integer count, styled green when non-zero and dim
// when zero (a zero count is rarely the interesting case).
func CountText(n int) string {
	if n == 0 {
		return Dim.Sprint("0")
	}
	return Green.Sprint(fmt.Sprintf("%d", n))
}

// Info prints a plain informational line.
func Info(s string) {
	fmt.Println(s)
}

// Infof prints a formatted informational line.
func Infof(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// Success prints a green-checked success line.
func Success(s string) {
	_, _ = Green.Println("✓ " + s)
}

// Successf prints a formatted, green-checked success line.
func Successf(format string, args ...interface{}) {
	_, _ = Green.Println("✓ " + fmt.Sprintf(format, args...))
}

// Warning prints a yellow warning line.
func Warning(s string) {
	_, _ = Yellow.Println("! " + s)
}

// Warningf prints a formatted yellow warning line.
func Warningf(format string, args ...interface{}) {
	_, _ = Yellow.Println("! " + fmt.Sprintf(format, args...))
}

// Errorln prints a red error line to stderr.
func Errorln(s string) {
	_, _ = Red.Fprintln(os.Stderr, "✗ "+s)
}
