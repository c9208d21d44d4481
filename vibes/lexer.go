package vibes

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type lexer struct {
	input string

	offset int
	width  int

	line   int
	column int

	ch rune
}

func newLexer(input string) *lexer {
	l := &lexer{input: input, line: 1, column: 0}
	l.readRune()
	return l
}

func (l *lexer) readRune() {
	if l.offset >= len(l.input) {
		l.width = 0
		l.ch = 0
		return
	}

	r, w := utf8.DecodeRuneInString(l.input[l.offset:])
	l.width = w
	l.offset += w

	if r == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}

	l.ch = r
}

func (l *lexer) peekRune() rune {
	if l.offset >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.offset:])
	return r
}

func (l *lexer) peekRuneN(n int) rune {
	idx := l.offset
	for i := 0; ; i++ {
		if idx >= len(l.input) {
			return 0
		}
		r, w := utf8.DecodeRuneInString(l.input[idx:])
		if i == n {
			return r
		}
		idx += w
	}
}

// pair emits a two-rune token when the next rune matches second.
func (l *lexer) pair(second rune, double TokenType, single TokenType) Token {
	if l.peekRune() == second {
		first := l.ch
		l.readRune()
		tok := l.makeToken(double, string(first)+string(l.ch))
		l.readRune()
		return tok
	}
	tok := l.makeToken(single, string(l.ch))
	l.readRune()
	return tok
}

func (l *lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	tok := Token{Pos: Position{Line: l.line, Column: l.column}}

	switch l.ch {
	case 0:
		tok.Type = tokenEOF
	case '+':
		tok = l.pair('=', tokenPlusAssign, tokenPlus)
	case '-':
		switch l.peekRune() {
		case '>':
			tok = l.pair('>', tokenArrow, tokenMinus)
		default:
			tok = l.pair('=', tokenMinusAssign, tokenMinus)
		}
	case '*':
		tok = l.single(tokenAsterisk)
	case '/':
		tok = l.single(tokenSlash)
	case '%':
		tok = l.single(tokenPercent)
	case '(':
		tok = l.single(tokenLParen)
	case ')':
		tok = l.single(tokenRParen)
	case '{':
		tok = l.single(tokenLBrace)
	case '}':
		tok = l.single(tokenRBrace)
	case '[':
		tok = l.single(tokenLBracket)
	case ']':
		tok = l.single(tokenRBracket)
	case ',':
		tok = l.single(tokenComma)
	case ':':
		if isIdentifierStart(l.peekRune()) {
			l.readRune()
			tok.Type = tokenSymbol
			tok.Literal = l.readIdentifier()
			return tok
		}
		tok = l.single(tokenColon)
	case '.':
		tok = l.pair('.', tokenRange, tokenDot)
	case '!':
		tok = l.pair('=', tokenNotEQ, tokenBang)
	case '=':
		switch l.peekRune() {
		case '>':
			tok = l.pair('>', tokenHashRock, tokenAssign)
		default:
			tok = l.pair('=', tokenEQ, tokenAssign)
		}
	case '>':
		tok = l.pair('=', tokenGTE, tokenGT)
	case '<':
		tok = l.pair('=', tokenLTE, tokenLT)
	case '&':
		tok = l.pair('&', tokenAnd, tokenIllegal)
	case '|':
		tok = l.pair('|', tokenOr, tokenPipe)
	case '"':
		literal, interpolated, err := l.readString('"')
		switch {
		case err != "":
			tok.Type = tokenIllegal
			tok.Literal = err
		case interpolated:
			tok.Type = tokenInterpString
			tok.Literal = literal
		default:
			tok.Type = tokenString
			tok.Literal = literal
		}
	case '\'':
		literal, _, err := l.readString('\'')
		if err != "" {
			tok.Type = tokenIllegal
			tok.Literal = err
		} else {
			tok.Type = tokenString
			tok.Literal = literal
		}
	default:
		switch {
		case l.ch == '@':
			l.readRune()
			if !isIdentifierStart(l.ch) {
				tok.Type = tokenIllegal
				tok.Literal = "@"
				return tok
			}
			tok.Type = tokenIvar
			tok.Literal = l.readIdentifier()
			return tok
		case isIdentifierStart(l.ch):
			literal := l.readIdentifier()
			tok.Type = lookupIdent(literal)
			tok.Literal = literal
			return tok
		case unicode.IsDigit(l.ch):
			literal, isFloat := l.readNumber()
			tok.Literal = literal
			if isFloat {
				tok.Type = tokenFloat
			} else {
				tok.Type = tokenInt
			}
			return tok
		default:
			tok = l.single(tokenIllegal)
		}
	}

	return tok
}

func (l *lexer) single(tt TokenType) Token {
	tok := l.makeToken(tt, string(l.ch))
	l.readRune()
	return tok
}

func (l *lexer) currentOffset() int {
	return l.offset - l.width
}

func (l *lexer) makeToken(tt TokenType, literal string) Token {
	return Token{Type: tt, Literal: literal, Pos: Position{Line: l.line, Column: l.column}}
}

func (l *lexer) skipWhitespaceAndComments() {
	for {
		switch l.ch {
		case ' ', '\t', '\r', '\n', ';':
			l.readRune()
		case '#':
			for l.ch != 0 && l.ch != '\n' {
				l.readRune()
			}
		default:
			return
		}
	}
}

func (l *lexer) readIdentifier() string {
	start := l.currentOffset()
	for isIdentifierRune(l.peekRune()) {
		l.readRune()
	}
	literal := l.input[start:l.offset]
	l.readRune()
	return literal
}

func (l *lexer) readNumber() (string, bool) {
	var sb strings.Builder
	hasDot := false

	sb.WriteRune(l.ch)

	for {
		r := l.peekRune()
		switch {
		case r == '_' && unicode.IsDigit(l.ch) && unicode.IsDigit(l.peekRuneN(1)):
			l.readRune()
		case r == '.' && !hasDot && unicode.IsDigit(l.peekRuneN(1)):
			hasDot = true
			l.readRune()
			sb.WriteRune('.')
		case unicode.IsDigit(r):
			l.readRune()
			sb.WriteRune(r)
		default:
			l.readRune()
			return sb.String(), hasDot
		}
	}
}

// readString consumes a quoted literal. Double-quoted strings containing
// #{...} are returned raw so the parser can split out the embedded
// expressions; every other string is returned with escapes applied.
func (l *lexer) readString(quote rune) (string, bool, string) {
	start := l.offset
	var sb strings.Builder
	interpolated := false
	depth := 0

	for {
		l.readRune()
		switch {
		case l.ch == 0:
			return "", false, "unterminated string"
		case depth > 0:
			switch l.ch {
			case '{':
				depth++
			case '}':
				depth--
			}
		case l.ch == quote:
			raw := l.input[start:l.currentOffset()]
			l.readRune()
			if interpolated {
				return raw, true, ""
			}
			return sb.String(), false, ""
		case quote == '"' && l.ch == '#' && l.peekRune() == '{':
			interpolated = true
			depth = 1
			l.readRune()
		case l.ch == '\\':
			next := l.peekRune()
			l.readRune()
			if quote == '\'' {
				if next != '\'' && next != '\\' {
					sb.WriteByte('\\')
				}
				sb.WriteRune(next)
				continue
			}
			sb.WriteString(unescapeRune(next))
		default:
			sb.WriteRune(l.ch)
		}
	}
}

func unescapeRune(r rune) string {
	switch r {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '0':
		return "\x00"
	default:
		return string(r)
	}
}

func isIdentifierStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentifierRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '?' || r == '!'
}

var keywords = map[string]TokenType{
	"def":      tokenDef,
	"class":    tokenClass,
	"self":     tokenSelf,
	"private":  tokenPrivate,
	"property": tokenProperty,
	"end":      tokenEnd,
	"return":   tokenReturn,
	"do":       tokenDo,
	"for":      tokenFor,
	"while":    tokenWhile,
	"in":       tokenIn,
	"if":       tokenIf,
	"elsif":    tokenElsif,
	"else":     tokenElse,
	"break":    tokenBreak,
	"next":     tokenNext,
	"raise":    tokenRaise,
	"begin":    tokenBegin,
	"rescue":   tokenRescue,
	"ensure":   tokenEnsure,
	"true":     tokenTrue,
	"false":    tokenFalse,
	"nil":      tokenNil,
	"and":      tokenAnd,
	"or":       tokenOr,
	"not":      tokenBang,
}

func lookupIdent(ident string) TokenType {
	if tt, ok := keywords[ident]; ok {
		return tt
	}
	return tokenIdent
}
