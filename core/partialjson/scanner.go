package partialjson

import (
	"errors"
	"regexp"
)

var errSyntax = errors.New("partialjson: invalid JSON prefix")

type frameKind uint8

const (
	frameObject frameKind = iota
	frameArray
)

type frameState uint8

const (
	// expectKeyOrEnd and expectElementOrEnd only occur in empty containers.
	expectKeyOrEnd frameState = iota
	expectElementOrEnd
	expectKey
	inKey
	expectColon
	expectValue
	afterValue
)

type frame struct {
	kind  frameKind
	state frameState
	// memberStart is where the current member begins: just after the opening
	// bracket for the first member, otherwise the index of its leading comma.
	// Cutting the text here drops the member entirely.
	memberStart int
}

type scalarKind uint8

const (
	scalarNone scalarKind = iota
	scalarString
	scalarLiteral
)

// scanner consumes a JSON prefix byte by byte. Its state depends only on the
// bytes seen so far, so fragments can be fed incrementally.
type scanner struct {
	text  []byte
	stack []frame

	rootStarted bool
	rootDone    bool

	scalar      scalarKind
	scalarStart int
	// escapeStart is the index of the pending backslash, or -1.
	escapeStart int
	hexLeft     int

	err error
}

func newScanner() *scanner {
	return &scanner{escapeStart: -1}
}

func (s *scanner) write(fragment string) error {
	for i := 0; i < len(fragment) && s.err == nil; i++ {
		s.step(fragment[i])
	}
	return s.err
}

func (s *scanner) step(c byte) {
	pos := len(s.text)
	s.text = append(s.text, c)

	switch s.scalar {
	case scalarString:
		s.stepString(c)
		return
	case scalarLiteral:
		if isLiteralByte(c) {
			if !literalPrefix(s.text[s.scalarStart:]) {
				s.err = errSyntax
			}
			return
		}
		if !validLiteral(s.text[s.scalarStart:pos]) {
			s.err = errSyntax
			return
		}
		s.scalar = scalarNone
		s.valueDone()
		// the terminating byte is structural and processed below
	}

	if isSpace(c) {
		return
	}

	if len(s.stack) == 0 {
		if s.rootDone {
			s.err = errSyntax
			return
		}
		s.rootStarted = true
		s.beginValue(c, pos)
		return
	}

	top := &s.stack[len(s.stack)-1]
	switch top.state {
	case expectKeyOrEnd, expectKey:
		switch {
		case c == '"':
			top.state = inKey
			s.scalar = scalarString
			s.scalarStart = pos
		case c == '}' && top.state == expectKeyOrEnd:
			s.pop()
		default:
			s.err = errSyntax
		}
	case expectColon:
		if c != ':' {
			s.err = errSyntax
			return
		}
		top.state = expectValue
	case expectElementOrEnd:
		if c == ']' {
			s.pop()
			return
		}
		top.state = expectValue
		s.beginValue(c, pos)
	case expectValue:
		s.beginValue(c, pos)
	case afterValue:
		switch {
		case c == ',' && top.kind == frameObject:
			top.state = expectKey
			top.memberStart = pos
		case c == ',' && top.kind == frameArray:
			top.state = expectValue
			top.memberStart = pos
		case c == '}' && top.kind == frameObject, c == ']' && top.kind == frameArray:
			s.pop()
		default:
			s.err = errSyntax
		}
	default:
		s.err = errSyntax
	}
}

func (s *scanner) beginValue(c byte, pos int) {
	switch {
	case c == '{':
		s.stack = append(s.stack, frame{kind: frameObject, state: expectKeyOrEnd, memberStart: pos + 1})
	case c == '[':
		s.stack = append(s.stack, frame{kind: frameArray, state: expectElementOrEnd, memberStart: pos + 1})
	case c == '"':
		s.scalar = scalarString
		s.scalarStart = pos
	case c == '-' || (c >= '0' && c <= '9') || c == 't' || c == 'f' || c == 'n':
		s.scalar = scalarLiteral
		s.scalarStart = pos
	default:
		s.err = errSyntax
	}
}

func (s *scanner) stepString(c byte) {
	pos := len(s.text) - 1
	switch {
	case s.hexLeft > 0:
		if !isHex(c) {
			s.err = errSyntax
			return
		}
		s.hexLeft--
		if s.hexLeft == 0 {
			s.escapeStart = -1
		}
	case s.escapeStart >= 0:
		switch c {
		case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
			s.escapeStart = -1
		case 'u':
			s.hexLeft = 4
		default:
			s.err = errSyntax
		}
	case c == '\\':
		s.escapeStart = pos
	case c == '"':
		s.scalar = scalarNone
		if len(s.stack) > 0 && s.stack[len(s.stack)-1].state == inKey {
			s.stack[len(s.stack)-1].state = expectColon
			return
		}
		s.valueDone()
	case c < 0x20:
		s.err = errSyntax
	}
}

// valueDone marks the current value of the innermost container as complete.
func (s *scanner) valueDone() {
	if len(s.stack) == 0 {
		s.rootDone = true
		return
	}
	s.stack[len(s.stack)-1].state = afterValue
}

func (s *scanner) pop() {
	s.stack = s.stack[:len(s.stack)-1]
	s.valueDone()
}

// complete returns the shortest valid JSON document obtained by cutting back
// any incomplete trailing member and closing every open container.
func (s *scanner) complete() (string, bool) {
	if s.err != nil || !s.rootStarted {
		return "", false
	}

	cut := len(s.text)
	suffix := ""
	dropMember := false

	switch s.scalar {
	case scalarString:
		inKeyString := len(s.stack) > 0 && s.stack[len(s.stack)-1].state == inKey
		if inKeyString {
			dropMember = true
			break
		}
		if s.escapeStart >= 0 {
			cut = s.escapeStart
		}
		suffix = `"`
	case scalarLiteral:
		if !validLiteral(s.text[s.scalarStart:]) {
			if len(s.stack) == 0 {
				return "", false
			}
			dropMember = true
		}
	default:
		if len(s.stack) > 0 {
			switch s.stack[len(s.stack)-1].state {
			case expectKeyOrEnd, expectElementOrEnd, expectKey, expectColon, expectValue:
				dropMember = true
			}
		}
	}

	if dropMember {
		cut = s.stack[len(s.stack)-1].memberStart
	}

	out := make([]byte, 0, cut+len(suffix)+len(s.stack))
	out = append(out, s.text[:cut]...)
	out = append(out, suffix...)
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].kind == frameObject {
			out = append(out, '}')
		} else {
			out = append(out, ']')
		}
	}
	return string(out), true
}

var (
	numberPattern       = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)
	numberPrefixPattern = regexp.MustCompile(`^-$|^-?(0|[1-9][0-9]*)(\.[0-9]*)?([eE][+-]?[0-9]*)?$`)
)

// literalPrefix reports whether b can still grow into a valid literal.
func literalPrefix(b []byte) bool {
	for _, word := range []string{"true", "false", "null"} {
		if len(b) <= len(word) && word[:len(b)] == string(b) {
			return true
		}
	}
	return numberPrefixPattern.Match(b)
}

func validLiteral(b []byte) bool {
	switch string(b) {
	case "true", "false", "null":
		return true
	}
	return numberPattern.Match(b)
}

func isLiteralByte(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || c == '-' || c == '+' || c == '.' || c == 'E'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
