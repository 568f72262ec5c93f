// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package parser

import (
	"fmt"
)

// LexError represents an error found while tokenizing the source, like an
// unterminated string, an invalid number or an inconsistent dedent.
type LexError struct {
	Pos SourceFilePos
	Msg string
}

func (e *LexError) Error() string {
	if e.Pos.Filename != "" || e.Pos.IsValid() {
		return fmt.Sprintf("Lex Error: %s\n\tat %s", e.Msg, e.Pos)
	}
	return fmt.Sprintf("Lex Error: %s", e.Msg)
}

// ParseError represents a syntax error. Expected and Found are set for
// unexpected tokens, Msg is set for structural errors like 'break' outside a
// loop.
type ParseError struct {
	Pos      SourceFilePos
	Expected string
	Found    string
	Msg      string
}

func (e *ParseError) Error() string {
	msg := e.Message()
	if e.Pos.Filename != "" || e.Pos.IsValid() {
		return fmt.Sprintf("Parse Error: %s\n\tat %s", msg, e.Pos)
	}
	return fmt.Sprintf("Parse Error: %s", msg)
}

// Message returns the error message without position information.
func (e *ParseError) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Found != "" {
		return fmt.Sprintf("expected %s, found %s", e.Expected, e.Found)
	}
	return "expected " + e.Expected
}
