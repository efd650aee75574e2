package sqlparse

import "strings"

// lexer tokenizes SQL input one byte at a time. Line and block comments
// are consumed here, so commented-out text never reaches the parser.
type lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
	line    int
	col     int
}

func newLexer(input string) *lexer {
	l := &lexer{input: input, line: 1}
	l.readChar()
	return l
}

func (l *lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

func (l *lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *lexer) currentPos() Position {
	return Position{Line: l.line, Column: l.col}
}

func (l *lexer) next() token {
	l.skipWhitespaceAndComments()

	pos := l.currentPos()
	var tok token
	tok.pos = pos

	switch l.ch {
	case 0:
		tok.typ = tokenEOF
	case '+':
		tok = l.symbol(tokenPlus, "+")
	case '-':
		tok = l.symbol(tokenMinus, "-")
	case '*':
		tok = l.symbol(tokenStar, "*")
	case '/':
		tok = l.symbol(tokenSlash, "/")
	case '%':
		tok = l.symbol(tokenPercent, "%")
	case '=':
		tok = l.symbol(tokenEq, "=")
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			tok = token{typ: tokenLe, literal: "<=", pos: pos}
		case '>':
			l.readChar()
			tok = token{typ: tokenNe, literal: "<>", pos: pos}
		default:
			tok = l.symbol(tokenLt, "<")
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = token{typ: tokenGe, literal: ">=", pos: pos}
		} else {
			tok = l.symbol(tokenGt, ">")
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = token{typ: tokenNe, literal: "!=", pos: pos}
		} else {
			tok = l.symbol(tokenIllegal, string(l.ch))
		}
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			tok = token{typ: tokenConcat, literal: "||", pos: pos}
		} else {
			tok = l.symbol(tokenIllegal, string(l.ch))
		}
	case '.':
		tok = l.symbol(tokenDot, ".")
	case ',':
		tok = l.symbol(tokenComma, ",")
	case ';':
		tok = l.symbol(tokenSemicolon, ";")
	case '(':
		tok = l.symbol(tokenLParen, "(")
	case ')':
		tok = l.symbol(tokenRParen, ")")
	case '\'':
		tok.typ = tokenString
		tok.literal = l.readString()
		return tok
	case '"':
		tok.typ = tokenIdent
		tok.literal = l.readQuotedIdentifier()
		return tok
	default:
		switch {
		case isLetter(l.ch) || l.ch == '_':
			tok.literal = l.readIdentifier()
			tok.typ = lookupIdent(strings.ToLower(tok.literal))
			return tok
		case isDigit(l.ch):
			tok.typ = tokenNumber
			tok.literal = l.readNumber()
			return tok
		default:
			tok = l.symbol(tokenIllegal, string(l.ch))
		}
	}

	l.readChar()
	return tok
}

func (l *lexer) symbol(typ tokenType, literal string) token {
	return token{typ: typ, literal: literal, pos: l.currentPos()}
}

func (l *lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '-' && l.peekChar() == '-' {
			l.skipLineComment()
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.skipBlockComment()
			continue
		}
		break
	}
}

func (l *lexer) skipLineComment() {
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
}

func (l *lexer) skipBlockComment() {
	l.readChar()
	l.readChar()
	for {
		if l.ch == 0 {
			return
		}
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar()
			l.readChar()
			return
		}
		l.readChar()
	}
}

// readString reads a single-quoted literal. A doubled quote escapes a
// quote character.
func (l *lexer) readString() string {
	l.readChar()

	var out strings.Builder
	for {
		if l.ch == 0 {
			break
		}
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				out.WriteByte('\'')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			break
		}
		out.WriteByte(l.ch)
		l.readChar()
	}
	return out.String()
}

// readQuotedIdentifier reads a double-quoted identifier with doubled
// quote escapes.
func (l *lexer) readQuotedIdentifier() string {
	l.readChar()

	var out strings.Builder
	for {
		if l.ch == 0 {
			break
		}
		if l.ch == '"' {
			if l.peekChar() == '"' {
				out.WriteByte('"')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			break
		}
		out.WriteByte(l.ch)
		l.readChar()
	}
	return out.String()
}

func (l *lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *lexer) readNumber() string {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
