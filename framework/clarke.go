// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2019 Cory Slep
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package framework

import (
	"strings"
)

const (
	clarkeShort = `
  %s
 %s
(%s)
 %s %s
  %s %s
`
	clarkeLongBegin = `
 ___________________________________
/ `
	clarkeLongMiddle = ` \
\___________________________________/
        \   ^__^
         \  (oo)\_______
            (__)\       )\/\
                ||----w |
                ||     ||
`
	clarkeLongEnd = ``
)

// ClarkeSays wraps a message in a friendly ASCII cow speech bubble, used
// for first-run hints during the interactive configuration flow.
func ClarkeSays(moo string) string {
	lines := wrapLines(strings.TrimSpace(moo), 35)
	if len(lines) == 0 {
		lines = []string{""}
	}
	width := 0
	for _, l := range lines {
		if len(l) > width {
			width = len(l)
		}
	}
	var sb strings.Builder
	sb.WriteString(" " + strings.Repeat("_", width+2) + "\n")
	for i, l := range lines {
		prefix := "/"
		suffix := "\\"
		if len(lines) == 1 {
			prefix, suffix = "<", ">"
		} else if i == 0 {
			prefix, suffix = "/", "\\"
		} else if i == len(lines)-1 {
			prefix, suffix = "\\", "/"
		} else {
			prefix, suffix = "|", "|"
		}
		sb.WriteString(prefix + " " + pad(l, width) + " " + suffix + "\n")
	}
	sb.WriteString(" " + strings.Repeat("-", width+2) + "\n")
	sb.WriteString(clarkeLongMiddle)
	return sb.String()
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// wrapLines greedily wraps text to a maximum column width, splitting on
// word boundaries.
func wrapLines(s string, width int) (lines []string) {
	words := strings.Fields(s)
	var cur string
	for _, w := range words {
		candidate := replace(cur, w, len(cur))
		if len(candidate) > width && len(cur) > 0 {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur = candidate
	}
	if len(cur) > 0 {
		lines = append(lines, cur)
	}
	return
}

// replace appends the next word to the current line, separated by a space
// when the line already has content.
func replace(cur, word string, offset int) string {
	if offset == 0 {
		return word
	}
	return cur + " " + word
}
