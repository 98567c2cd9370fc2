// MD5 text format tokenizer shared by the mesh and anim parsers.
package formats

import (
	"errors"
	"fmt"
	"strconv"
)

// MD5 format errors.
var (
	ErrInvalidMD5Version   = errors.New("unsupported MD5 version: expected 10")
	ErrTruncatedMD5Data    = errors.New("truncated MD5 data")
	ErrInvalidMD5Syntax    = errors.New("invalid MD5 syntax")
	ErrInvalidMD5Hierarchy = errors.New("invalid MD5 joint hierarchy")
	ErrMD5CountMismatch    = errors.New("MD5 element count mismatch")
	ErrInvalidMD5Weight    = errors.New("invalid MD5 vertex weight")
	ErrInvalidMD5Triangle  = errors.New("invalid MD5 triangle index")
	ErrEmptyMD5Anim        = errors.New("MD5 anim has no frames")
)

// MD5Version is the only version of the text format understood here.
const MD5Version = 10

// md5Lexer splits MD5 text into words, quoted strings and single-character
// punctuation tokens. Line comments start with "//".
type md5Lexer struct {
	data []byte
	pos  int
	line int
}

func newMD5Lexer(data []byte) *md5Lexer {
	return &md5Lexer{data: data, line: 1}
}

func (l *md5Lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '/' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '/':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

// done reports whether only whitespace and comments remain.
func (l *md5Lexer) done() bool {
	l.skipSpace()
	return l.pos >= len(l.data)
}

// next returns the next token. Quoted strings are returned without quotes.
func (l *md5Lexer) next() (string, error) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return "", ErrTruncatedMD5Data
	}

	c := l.data[l.pos]
	switch c {
	case '(', ')', '{', '}':
		l.pos++
		return string(c), nil
	case '"':
		start := l.pos + 1
		end := start
		for end < len(l.data) && l.data[end] != '"' {
			if l.data[end] == '\n' {
				return "", l.errorf("unterminated string")
			}
			end++
		}
		if end >= len(l.data) {
			return "", ErrTruncatedMD5Data
		}
		l.pos = end + 1
		return string(l.data[start:end]), nil
	}

	start := l.pos
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '(' || c == ')' || c == '{' || c == '}' || c == '"' {
			break
		}
		l.pos++
	}
	return string(l.data[start:l.pos]), nil
}

func (l *md5Lexer) expect(tok string) error {
	got, err := l.next()
	if err != nil {
		return err
	}
	if got != tok {
		return l.errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (l *md5Lexer) readInt() (int, error) {
	tok, err := l.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, l.errorf("expected integer, got %q", tok)
	}
	return v, nil
}

// readCount reads an element count for a block that follows. Every element
// takes at least one byte, so counts beyond the remaining input are rejected
// before anything is allocated for them.
func (l *md5Lexer) readCount(key string) (int, error) {
	n, err := l.readInt()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, l.errorf("negative %s count %d", key, n)
	}
	if n > len(l.data)-l.pos {
		return 0, fmt.Errorf("%w: %s %d exceeds remaining input (line %d)", ErrMD5CountMismatch, key, n, l.line)
	}
	return n, nil
}

func (l *md5Lexer) readFloat() (float32, error) {
	tok, err := l.next()
	if err != nil {
		return 0, err
	}
	return l.parseFloat(tok)
}

func (l *md5Lexer) parseFloat(tok string) (float32, error) {
	v, err := strconv.ParseFloat(tok, 32)
	if err != nil {
		return 0, l.errorf("expected number, got %q", tok)
	}
	return float32(v), nil
}

// vec3 reads "( x y z )".
func (l *md5Lexer) vec3() ([3]float32, error) {
	var v [3]float32
	if err := l.expect("("); err != nil {
		return v, err
	}
	for i := range v {
		f, err := l.readFloat()
		if err != nil {
			return v, err
		}
		v[i] = f
	}
	return v, l.expect(")")
}

// vec2 reads "( u v )".
func (l *md5Lexer) vec2() ([2]float32, error) {
	var v [2]float32
	if err := l.expect("("); err != nil {
		return v, err
	}
	for i := range v {
		f, err := l.readFloat()
		if err != nil {
			return v, err
		}
		v[i] = f
	}
	return v, l.expect(")")
}

func (l *md5Lexer) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrInvalidMD5Syntax, l.line, fmt.Sprintf(format, args...))
}

// parseMD5Version reads the "MD5Version 10" value after the keyword.
func parseMD5Version(l *md5Lexer) (int, error) {
	v, err := l.readInt()
	if err != nil {
		return 0, err
	}
	if v != MD5Version {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidMD5Version, v)
	}
	return v, nil
}
