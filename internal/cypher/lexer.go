package cypher

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// eof marks the end of input. NUL bytes inside the text are ordinary
// characters, so the lexer cannot use 0 as a sentinel.
const eof rune = -1

// TokenIterator yields tokens in order. Iteration stops after the first
// error or after EOF.
type TokenIterator iter.Seq2[Token, error]

// Lexer splits Cypher text into tokens.
type Lexer struct {
	input string
}

// NewLexer creates a Lexer for input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokens returns an iterator of tokens
func (l *Lexer) Tokens() TokenIterator {
	return func(yield func(Token, error) bool) {
		s := newScanner(l.input)
		for {
			token, err := s.nextToken()
			if err != nil {
				yield(Token{}, err)
				return
			}
			if !yield(token, nil) || token.Type == EOF {
				return
			}
		}
	}
}

// Tokenize returns every token of input including the trailing EOF.
func Tokenize(input string) ([]Token, error) {
	tokens := make([]Token, 0, 64)
	for token, err := range NewLexer(input).Tokens() {
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

type scanner struct {
	input   string
	offset  int // byte offset of current
	next    int // byte offset after current
	current rune
	line    int
	column  int
}

func newScanner(input string) *scanner {
	s := &scanner{input: input, line: 1, column: 1}
	s.decode()
	return s
}

func (s *scanner) decode() {
	if s.next >= len(s.input) {
		s.offset = len(s.input)
		s.current = eof
		return
	}
	r, w := utf8.DecodeRuneInString(s.input[s.next:])
	s.offset = s.next
	s.next += w
	s.current = r
}

func (s *scanner) readChar() {
	if s.current == eof {
		return
	}
	if s.current == '\n' {
		s.line++
		s.column = 1
	} else {
		s.column++
	}
	s.decode()
}

func (s *scanner) peekChar() rune {
	if s.next >= len(s.input) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(s.input[s.next:])
	return r
}

func (s *scanner) mark() Position {
	return Position{Line: s.line, Column: s.column, Offset: s.offset}
}

func (s *scanner) token(tokenType TokenType, start Position) Token {
	return Token{Type: tokenType, Value: s.input[start.Offset:s.offset], Position: start}
}

func (s *scanner) single(tokenType TokenType) (Token, error) {
	start := s.mark()
	s.readChar()
	return s.token(tokenType, start), nil
}

func (s *scanner) nextToken() (Token, error) {
	switch c := s.current; {
	case c == eof:
		return Token{Type: EOF, Position: s.mark()}, nil
	case unicode.IsSpace(c):
		start := s.mark()
		for s.current != eof && unicode.IsSpace(s.current) {
			s.readChar()
		}
		return s.token(WHITESPACE, start), nil
	case c == '/' && s.peekChar() == '/':
		return s.readLineComment()
	case c == '/' && s.peekChar() == '*':
		return s.readBlockComment()
	case c == '\'' || c == '"':
		return s.readString(c)
	case c == '`':
		return s.readQuotedIdent(QUOTED_IDENT)
	case c == '$':
		return s.readParameter()
	case c == ';':
		return s.single(SEMICOLON)
	case c == '.':
		return s.single(DOT)
	case c == ':':
		return s.single(COLON)
	case c == ',':
		return s.single(COMMA)
	case c == '(':
		return s.single(OPENED_PARENS)
	case c == ')':
		return s.single(CLOSED_PARENS)
	case c == '{':
		return s.single(OPENED_BRACE)
	case c == '}':
		return s.single(CLOSED_BRACE)
	case c == '[':
		return s.single(OPENED_BRACKET)
	case c == ']':
		return s.single(CLOSED_BRACKET)
	case unicode.IsDigit(c):
		return s.readNumber()
	case isIdentStart(c):
		return s.readWord()
	default:
		return s.single(OTHER)
	}
}

func isIdentStart(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

func isIdentPart(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

func (s *scanner) readWord() (Token, error) {
	start := s.mark()
	for s.current != eof && isIdentPart(s.current) {
		s.readChar()
	}
	return s.token(WORD, start), nil
}

// readString reads a quoted string. Backslash escapes the next character.
func (s *scanner) readString(delimiter rune) (Token, error) {
	start := s.mark()
	s.readChar()

	for s.current != eof && s.current != delimiter {
		if s.current == '\\' {
			s.readChar()
		}
		s.readChar()
	}

	if s.current == eof {
		return Token{}, fmt.Errorf("%w: %c at line %d, column %d", ErrUnterminatedString, delimiter, start.Line, start.Column)
	}
	s.readChar()
	return s.token(STRING, start), nil
}

// readQuotedIdent reads a backtick identifier. A doubled backtick is an
// escaped backtick.
func (s *scanner) readQuotedIdent(tokenType TokenType) (Token, error) {
	start := s.mark()
	if tokenType == PARAMETER {
		start.Offset--
		start.Column--
	}
	s.readChar()

	for {
		if s.current == eof {
			return Token{}, fmt.Errorf("%w at line %d, column %d", ErrUnterminatedIdentifier, start.Line, start.Column)
		}
		if s.current == '`' {
			if s.peekChar() == '`' {
				s.readChar()
				s.readChar()
				continue
			}
			s.readChar()
			return s.token(tokenType, start), nil
		}
		s.readChar()
	}
}

func (s *scanner) readParameter() (Token, error) {
	start := s.mark()
	s.readChar()

	switch {
	case s.current == '`':
		return s.readQuotedIdent(PARAMETER)
	case s.current != eof && isIdentPart(s.current):
		for s.current != eof && isIdentPart(s.current) {
			s.readChar()
		}
		return s.token(PARAMETER, start), nil
	default:
		return Token{}, fmt.Errorf("%w at line %d, column %d", ErrInvalidParameter, start.Line, start.Column)
	}
}

// readNumber reads integer, float, hex and octal literals loosely: the
// classifier only needs to know where the literal ends.
func (s *scanner) readNumber() (Token, error) {
	start := s.mark()
	for {
		switch {
		case s.current == eof:
			return s.token(NUMBER, start), nil
		case isIdentPart(s.current):
			exp := s.current == 'e' || s.current == 'E'
			s.readChar()
			if exp && (s.current == '+' || s.current == '-') {
				s.readChar()
			}
		case s.current == '.' && unicode.IsDigit(s.peekChar()):
			s.readChar()
		default:
			return s.token(NUMBER, start), nil
		}
	}
}

func (s *scanner) readLineComment() (Token, error) {
	start := s.mark()
	for s.current != eof && s.current != '\n' {
		s.readChar()
	}
	return s.token(LINE_COMMENT, start), nil
}

func (s *scanner) readBlockComment() (Token, error) {
	start := s.mark()
	s.readChar()
	s.readChar()

	for s.current != eof {
		if s.current == '*' && s.peekChar() == '/' {
			s.readChar()
			s.readChar()
			return s.token(BLOCK_COMMENT, start), nil
		}
		s.readChar()
	}
	return Token{}, fmt.Errorf("%w at line %d, column %d", ErrUnterminatedComment, start.Line, start.Column)
}

// Split returns the statements of input separated by top-level semicolons.
// Statements consisting only of whitespace and comments are dropped.
func Split(input string) ([]string, error) {
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, stmt := range splitTokens(tokens) {
		out = append(out, statementText(input, stmt))
	}
	return out, nil
}

// splitTokens groups significant tokens by statement, dropping terminators
// and empty statements.
func splitTokens(tokens []Token) [][]Token {
	var (
		out     [][]Token
		current []Token
	)
	for _, tok := range tokens {
		switch {
		case tok.Type == SEMICOLON || tok.Type == EOF:
			if len(current) > 0 {
				out = append(out, current)
			}
			current = nil
		case tok.Significant():
			current = append(current, tok)
		}
	}
	return out
}

func statementText(input string, stmt []Token) string {
	first, last := stmt[0], stmt[len(stmt)-1]
	return strings.TrimSpace(input[first.Position.Offset : last.Position.Offset+len(last.Value)])
}
