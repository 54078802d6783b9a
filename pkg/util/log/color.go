// Copyright 2013 Google Inc. All Rights Reserved.
// Copyright 2017 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package log

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// textFormatter returns the text formatter for output to w, with colors when
// w is a terminal that supports them.
func textFormatter(w io.Writer) *logrus.TextFormatter {
	color := terminalSupportsColor(w)
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "060102 15:04:05.000000",
		ForceColors:     color,
		DisableColors:   !color,
	}
}

// terminalSupportsColor determines whether w is a terminal and if
// so, whether the terminal supports color output.
func terminalSupportsColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) {
		return false
	}
	term := os.Getenv("TERM")
	switch term {
	case "ansi", "tmux", "st":
		return true
	}
	return strings.HasSuffix(term, "color") || strings.HasPrefix(term, "screen")
}
