// Package filter compiles predicate strings such as "Radians lt 50" or
// "contains(Id, 'Target')" into boolean expressions evaluated against named
// fields.
package filter

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenIdent
	TokenNumber
	TokenString

	// Keywords
	TokenAnd
	TokenOr
	TokenNot
	TokenTrue
	TokenFalse
	TokenNull

	// Comparison operators, spelled as keywords or symbols
	TokenEq // eq, =
	TokenNe // ne, !=, <>
	TokenLt // lt, <
	TokenGt // gt, >
	TokenLe // le, <=
	TokenGe // ge, >=

	TokenMinus  // -
	TokenComma  // ,
	TokenLParen // (
	TokenRParen // )
)

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

// String returns a string representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, %d}", t.Type.String(), t.Literal, t.Pos)
}

var tokenNames = map[TokenType]string{
	TokenEOF:    "EOF",
	TokenError:  "ERROR",
	TokenIdent:  "IDENT",
	TokenNumber: "NUMBER",
	TokenString: "STRING",
	TokenAnd:    "and",
	TokenOr:     "or",
	TokenNot:    "not",
	TokenTrue:   "true",
	TokenFalse:  "false",
	TokenNull:   "null",
	TokenEq:     "eq",
	TokenNe:     "ne",
	TokenLt:     "lt",
	TokenGt:     "gt",
	TokenLe:     "le",
	TokenGe:     "ge",
	TokenMinus:  "-",
	TokenComma:  ",",
	TokenLParen: "(",
	TokenRParen: ")",
}

// String returns the string representation of a TokenType.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// keywords maps lower-cased keywords to their token types.
var keywords = map[string]TokenType{
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"true":  TokenTrue,
	"false": TokenFalse,
	"null":  TokenNull,
	"eq":    TokenEq,
	"ne":    TokenNe,
	"lt":    TokenLt,
	"gt":    TokenGt,
	"le":    TokenLe,
	"ge":    TokenGe,
}

// Lexer tokenizes filter input.
type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	startPos := l.pos
	var tok Token

	switch l.ch {
	case '=':
		tok = Token{Type: TokenEq, Literal: "eq", Pos: startPos}
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			tok = Token{Type: TokenLe, Literal: "le", Pos: startPos}
		case '>':
			l.readChar()
			tok = Token{Type: TokenNe, Literal: "ne", Pos: startPos}
		default:
			tok = Token{Type: TokenLt, Literal: "lt", Pos: startPos}
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenGe, Literal: "ge", Pos: startPos}
		} else {
			tok = Token{Type: TokenGt, Literal: "gt", Pos: startPos}
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenNe, Literal: "ne", Pos: startPos}
		} else {
			tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
		}
	case '-':
		tok = Token{Type: TokenMinus, Literal: "-", Pos: startPos}
	case ',':
		tok = Token{Type: TokenComma, Literal: ",", Pos: startPos}
	case '(':
		tok = Token{Type: TokenLParen, Literal: "(", Pos: startPos}
	case ')':
		tok = Token{Type: TokenRParen, Literal: ")", Pos: startPos}
	case '\'':
		tok = l.readString()
	case 0:
		tok = Token{Type: TokenEOF, Literal: "", Pos: startPos}
	default:
		if isLetter(l.ch) || l.ch == '_' {
			return l.readIdentifier()
		} else if isDigit(l.ch) {
			return l.readNumber()
		}
		tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
	}

	l.readChar()
	return tok
}

func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '.' {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	if tokType, ok := keywords[strings.ToLower(literal)]; ok {
		return Token{Type: tokType, Literal: strings.ToLower(literal), Pos: start}
	}
	return Token{Type: TokenIdent, Literal: literal, Pos: start}
}

// readNumber reads an integer, decimal or exponent literal.
func (l *Lexer) readNumber() Token {
	start := l.pos
	hasDecimal := false
	hasExponent := false

	for {
		switch {
		case isDigit(l.ch):
		case l.ch == '.' && !hasDecimal && !hasExponent:
			hasDecimal = true
		case (l.ch == 'e' || l.ch == 'E') && !hasExponent:
			hasExponent = true
			if p := l.peekChar(); p == '-' || p == '+' {
				l.readChar()
			}
		default:
			return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: start}
		}
		l.readChar()
	}
}

// readString reads a single-quoted literal; a doubled quote escapes one.
func (l *Lexer) readString() Token {
	startPos := l.pos
	var sb strings.Builder
	l.readChar()

	for {
		if l.ch == 0 {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: startPos}
		}
		if l.ch == '\'' {
			if l.peekChar() != '\'' {
				break
			}
			l.readChar()
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}

	// The closing quote is consumed by NextToken.
	return Token{Type: TokenString, Literal: sb.String(), Pos: startPos}
}

// Tokenize returns all tokens from the input.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
