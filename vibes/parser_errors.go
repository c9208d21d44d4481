package vibes

import (
	"errors"
	"fmt"
	"strings"
)

type parseError struct {
	pos    Position
	msg    string
	source string
}

func (e *parseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "parse error at %d:%d: %s", e.pos.Line, e.pos.Column, e.msg)
	if frame := formatCodeFrame(e.source, e.pos); frame != "" {
		b.WriteString("\n")
		b.WriteString(frame)
	}
	return b.String()
}

// Position returns where the parse error was detected.
func (e *parseError) Position() Position {
	return e.pos
}

// IsSyntaxError reports whether err came from parsing source.
func IsSyntaxError(err error) bool {
	var perr *parseError
	return errors.As(err, &perr)
}

func (p *parser) errorExpected(tok Token, expected string) {
	p.addParseError(tok.Pos, fmt.Sprintf("expected %s, got %s", expected, tokenLabel(tok.Type)))
}

func (p *parser) errorUnexpected(tok Token) {
	p.addParseError(tok.Pos, fmt.Sprintf("unexpected token %s", tokenLabel(tok.Type)))
}

func (p *parser) addParseError(pos Position, msg string) {
	p.errors = append(p.errors, &parseError{pos: pos, msg: msg, source: p.source})
}

var tokenLabels = map[TokenType]string{
	tokenIllegal:      "invalid token",
	tokenEOF:          "end of input",
	tokenIdent:        "identifier",
	tokenInt:          "integer",
	tokenFloat:        "float",
	tokenString:       "string",
	tokenInterpString: "string",
	tokenSymbol:       "symbol",
	tokenIvar:         "instance variable",
}

func tokenLabel(tt TokenType) string {
	if label, ok := tokenLabels[tt]; ok {
		return label
	}
	for word, kw := range keywords {
		if kw == tt && strings.ToUpper(word) == string(tt) {
			return "'" + word + "'"
		}
	}
	return fmt.Sprintf("%q", string(tt))
}
