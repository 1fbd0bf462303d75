package dxf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// binarySentinel opens every binary DXF file.
var binarySentinel = []byte("AutoCAD Binary DXF\r\n\x1a\x00")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Group is one (group code, value) pair. Values are raw bytes from the file;
// string decoding happens once the header's code page is known.
type Group struct {
	Code  int
	Value string
}

// Lexer reads group pairs from an ASCII DXF stream.
type Lexer struct {
	reader *bufio.Reader
	line   int
}

// NewLexer creates a new lexer. It rejects binary DXF and skips a UTF-8 BOM.
func NewLexer(r io.Reader) (*Lexer, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, _ := br.Peek(len(binarySentinel))
	if bytes.Equal(head, binarySentinel) {
		return nil, parseError(0, "binary DXF is not supported")
	}
	if bytes.HasPrefix(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &Lexer{reader: br}, nil
}

// Next returns the next group, or io.EOF at a clean end of input.
func (l *Lexer) Next() (Group, error) {
	codeLine, err := l.readLine()
	if err != nil {
		return Group{}, err
	}
	for strings.TrimSpace(codeLine) == "" {
		// tolerate blank lines between groups
		if codeLine, err = l.readLine(); err != nil {
			return Group{}, err
		}
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(codeLine))
	if convErr != nil {
		return Group{}, parseError(l.line, fmt.Sprintf("invalid group code %q", truncate(codeLine, 32)))
	}

	value, err := l.readLine()
	if err == io.EOF {
		return Group{}, parseError(l.line, fmt.Sprintf("missing value for group code %d", code))
	}
	if err != nil {
		return Group{}, err
	}
	return Group{Code: code, Value: value}, nil
}

// Line returns the number of lines consumed so far.
func (l *Lexer) Line() int {
	return l.line
}

func (l *Lexer) readLine() (string, error) {
	s, err := l.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && s != "") {
		return "", err
	}
	l.line++
	return strings.TrimRight(s, "\r\n"), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
