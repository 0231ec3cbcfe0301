package partialjson

import (
	"encoding/json"
	"fmt"
)

// Complete closes an incomplete JSON text with the minimal completion: open
// strings and containers are closed, while a dangling key, a trailing comma
// or an unfinished literal is cut back to the last complete value. It reports
// false when the text is malformed or holds no value yet.
func Complete(text string) (string, bool) {
	s := newScanner()
	if err := s.write(text); err != nil {
		return "", false
	}
	return s.complete()
}

// Parse decodes the completion of text.
func Parse(text string) (any, bool) {
	completed, ok := Complete(text)
	if !ok {
		return nil, false
	}
	return decode(completed)
}

func decode(completed string) (any, bool) {
	var value any
	if err := json.Unmarshal([]byte(completed), &value); err != nil {
		return nil, false
	}
	return value, true
}

// Parser accumulates fragments of a streamed JSON value. Scanning is
// incremental; each Write costs work proportional to the fragment plus one
// decode of the completed text.
type Parser struct {
	scanner   *scanner
	completed string
	value     any
	hasValue  bool
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{scanner: newScanner()}
}

// Write appends fragment and returns the current partial value. ok is true
// only when the value differs from the one returned by the previous Write,
// so callers can emit progress events on change only. After a syntax error
// ok stays false; Final reports the error.
func (p *Parser) Write(fragment string) (value any, ok bool) {
	if p.scanner.write(fragment) != nil {
		return p.value, false
	}
	completed, ok := p.scanner.complete()
	if !ok || completed == p.completed {
		return p.value, false
	}
	decoded, ok := decode(completed)
	if !ok {
		return p.value, false
	}
	p.completed = completed
	p.value = decoded
	p.hasValue = true
	return decoded, true
}

// Value returns the latest partial value and whether one exists.
func (p *Parser) Value() (any, bool) {
	return p.value, p.hasValue
}

// Text returns everything written so far.
func (p *Parser) Text() string {
	return string(p.scanner.text)
}

// Final strictly validates the accumulated text. An empty text is treated as
// the empty object, which providers send for tools without parameters.
func (p *Parser) Final() (json.RawMessage, error) {
	text := p.scanner.text
	if len(trimSpace(text)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(text) {
		var probe any
		err := json.Unmarshal(text, &probe)
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return json.RawMessage(append([]byte(nil), text...)), nil
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	for len(b) > 0 && isSpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}
