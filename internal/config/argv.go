package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	errOpenQuote  = errors.New("unterminated quote")
	errOpenEscape = errors.New("unterminated escape sequence")
)

// parseArgv splits a playback command into argv with shell-like quoting:
// single or double quotes group words and a backslash escapes the next rune.
// Blank input and input starting with '#' yield no command.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || input[0] == '#' {
		return nil, nil
	}

	lex := argvLexer{}
	for _, r := range input {
		lex.feed(r)
	}
	if err := lex.finish(); err != nil {
		return nil, fmt.Errorf("%w in command: %q", err, input)
	}
	return lex.argv, nil
}

type argvLexer struct {
	argv    []string
	word    strings.Builder
	quote   rune
	escaped bool
}

func (l *argvLexer) feed(r rune) {
	if l.escaped {
		l.escaped = false
		l.word.WriteRune(r)
		return
	}
	if r == '\\' {
		l.escaped = true
		return
	}

	switch l.quote {
	case 0:
		switch {
		case r == '\'' || r == '"':
			l.quote = r
		case unicode.IsSpace(r):
			l.endWord()
		default:
			l.word.WriteRune(r)
		}
	case r:
		l.quote = 0
	default:
		l.word.WriteRune(r)
	}
}

func (l *argvLexer) endWord() {
	if l.word.Len() == 0 {
		return
	}
	l.argv = append(l.argv, l.word.String())
	l.word.Reset()
}

func (l *argvLexer) finish() error {
	switch {
	case l.escaped:
		return errOpenEscape
	case l.quote != 0:
		return errOpenQuote
	}
	l.endWord()
	return nil
}
