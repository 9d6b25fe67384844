package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		line string
		cmd  command
		text string
	}{
		{"", cmdNone, ""},
		{"next", cmdNext, ""},
		{"N", cmdNext, ""},
		{"prev", cmdPrev, ""},
		{"s", cmdSave, ""},
		{"Submit", cmdSubmit, ""},
		{"q", cmdQuit, ""},
		{"?", cmdHelp, ""},
		{"goroutine", cmdAnswer, "goroutine"},
		{"2", cmdAnswer, "2"},
		{"=next", cmdAnswer, "next"},
		{"= s", cmdAnswer, "s"},
		{"=submit", cmdAnswer, "submit"},
		{"=", cmdAnswer, ""},
	}
	for _, tt := range tests {
		cmd, text := parseInput(tt.line)
		assert.Equal(t, tt.cmd, cmd, tt.line)
		assert.Equal(t, tt.text, text, tt.line)
	}
}
