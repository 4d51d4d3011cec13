package filter

import (
	"strings"
	"unicode"
)

// TokenType is the kind of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenWord
	TokenString
	TokenColon
	TokenEq
	TokenNeq
	TokenRegex
	TokenContains
	TokenGte
	TokenGt
	TokenLte
	TokenLt
	TokenLParen
	TokenRParen
	TokenAnd
	TokenOr
	TokenNot
	TokenIllegal
)

var tokenNames = [...]string{
	"end of input", "word", "string", "':'", "'='", "'!='", "'~'", "'*='",
	"'>='", "'>'", "'<='", "'<'", "'('", "')'", "AND", "OR", "NOT", "illegal",
}

func (t TokenType) String() string { return tokenNames[t] }

// Token is one lexeme and its byte offset in the input.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// Lexer tokenizes filter text.
type Lexer struct {
	input string
	pos   int
}

func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]
	two := ""
	if l.pos+1 < len(l.input) {
		two = l.input[l.pos : l.pos+2]
	}
	switch two {
	case "!=":
		return l.emit(TokenNeq, 2)
	case ">=":
		return l.emit(TokenGte, 2)
	case "<=":
		return l.emit(TokenLte, 2)
	case "*=":
		return l.emit(TokenContains, 2)
	case "&&":
		return l.emit(TokenAnd, 2)
	case "||":
		return l.emit(TokenOr, 2)
	}
	switch ch {
	case ':':
		return l.emit(TokenColon, 1)
	case '=':
		return l.emit(TokenEq, 1)
	case '~':
		return l.emit(TokenRegex, 1)
	case '>':
		return l.emit(TokenGt, 1)
	case '<':
		return l.emit(TokenLt, 1)
	case '(':
		return l.emit(TokenLParen, 1)
	case ')':
		return l.emit(TokenRParen, 1)
	case '!':
		return l.emit(TokenNot, 1)
	case '"':
		return l.readString()
	}

	l.readWord()
	value := l.input[start:l.pos]
	switch strings.ToUpper(value) {
	case "AND":
		return Token{Type: TokenAnd, Value: value, Pos: start}
	case "OR":
		return Token{Type: TokenOr, Value: value, Pos: start}
	case "NOT":
		return Token{Type: TokenNot, Value: value, Pos: start}
	}
	return Token{Type: TokenWord, Value: value, Pos: start}
}

func (l *Lexer) emit(t TokenType, width int) Token {
	tok := Token{Type: t, Value: l.input[l.pos : l.pos+width], Pos: l.pos}
	l.pos += width
	return tok
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

// readString consumes a double quoted string. Backslash escapes the
// next byte.
func (l *Lexer) readString() Token {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '\\' && l.pos+1 < len(l.input):
			b.WriteByte(l.input[l.pos+1])
			l.pos += 2
		case ch == '"':
			l.pos++
			return Token{Type: TokenString, Value: b.String(), Pos: start}
		default:
			b.WriteByte(ch)
			l.pos++
		}
	}
	return Token{Type: TokenIllegal, Value: "unterminated string", Pos: start}
}

func (l *Lexer) readWord() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if unicode.IsSpace(rune(ch)) || strings.IndexByte(`():"~<>=!`, ch) >= 0 {
			return
		}
		if ch == '*' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			return
		}
		l.pos++
	}
}
