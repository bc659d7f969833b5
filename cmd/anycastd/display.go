// Copyright 2015 The MOAC-core Authors
// This file is part of MOAC-core.
//
// MOAC-core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// MOAC-core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with MOAC-core. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
)

// display prints demo event lines to a colorable stdout, so ANSI
// color codes render correctly under the Windows console as well as
// real terminals — the same pairing the rest of the pack reaches for
// instead of writing raw escape codes.
type display struct {
	out                          io.Writer
	fgreen, fcyan, fred, fyellow func(format string, a ...interface{}) string
}

func newDisplay() *display {
	return &display{
		out:     colorable.NewColorableStdout(),
		fgreen:  color.New(color.FgHiGreen).SprintfFunc(),
		fcyan:   color.New(color.FgHiCyan).SprintfFunc(),
		fred:    color.New(color.FgHiRed).SprintfFunc(),
		fyellow: color.New(color.FgHiYellow).SprintfFunc(),
	}
}

func (d *display) sent(node string, address uint8, payload []byte) {
	fmt.Fprintln(d.out, d.fgreen("[%s] send confirmed: address=%d payload=%q", node, address, payload))
}

func (d *display) recv(node string, address uint8, payload []byte) {
	fmt.Fprintln(d.out, d.fcyan("[%s] data received: address=%d payload=%q", node, address, payload))
}

func (d *display) timeout(node string, code string) {
	fmt.Fprintln(d.out, d.fred("[%s] send timed out: %s", node, code))
}

func (d *display) info(format string, a ...interface{}) {
	fmt.Fprintln(d.out, d.fyellow(format, a...))
}
