package cypher

import "errors"

// Sentinel errors
var (
	ErrUnterminatedString     = errors.New("unterminated string literal")
	ErrUnterminatedIdentifier = errors.New("unterminated quoted identifier")
	ErrUnterminatedComment    = errors.New("unterminated block comment")
	ErrInvalidParameter       = errors.New("invalid parameter reference")
)

// TokenType represents the type of a token
type TokenType int

const (
	EOF TokenType = iota
	WHITESPACE
	WORD         // identifiers, keywords
	STRING       // 'text', "text"
	QUOTED_IDENT // `identifier`
	PARAMETER    // $name, $0, $`name`
	NUMBER
	LINE_COMMENT  // // comment
	BLOCK_COMMENT // /* comment */
	SEMICOLON
	DOT
	COLON
	COMMA
	OPENED_PARENS
	CLOSED_PARENS
	OPENED_BRACE
	CLOSED_BRACE
	OPENED_BRACKET
	CLOSED_BRACKET
	OTHER // operators and everything else
)

// String returns the string representation of TokenType
func (t TokenType) String() string {
	switch t {
	case EOF:
		return "EOF"
	case WHITESPACE:
		return "WHITESPACE"
	case WORD:
		return "WORD"
	case STRING:
		return "STRING"
	case QUOTED_IDENT:
		return "QUOTED_IDENT"
	case PARAMETER:
		return "PARAMETER"
	case NUMBER:
		return "NUMBER"
	case LINE_COMMENT:
		return "LINE_COMMENT"
	case BLOCK_COMMENT:
		return "BLOCK_COMMENT"
	case SEMICOLON:
		return "SEMICOLON"
	case DOT:
		return "DOT"
	case COLON:
		return "COLON"
	case COMMA:
		return "COMMA"
	case OPENED_PARENS:
		return "OPENED_PARENS"
	case CLOSED_PARENS:
		return "CLOSED_PARENS"
	case OPENED_BRACE:
		return "OPENED_BRACE"
	case CLOSED_BRACE:
		return "CLOSED_BRACE"
	case OPENED_BRACKET:
		return "OPENED_BRACKET"
	case CLOSED_BRACKET:
		return "CLOSED_BRACKET"
	case OTHER:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// Position represents a position in the query text
type Position struct {
	Line   int
	Column int
	Offset int
}

// Token represents a token
type Token struct {
	Type     TokenType
	Value    string
	Position Position
}

// String returns the string representation of Token
func (t Token) String() string {
	return t.Type.String() + ": " + t.Value
}

// Significant reports whether the token carries meaning for classification.
func (t Token) Significant() bool {
	switch t.Type {
	case WHITESPACE, LINE_COMMENT, BLOCK_COMMENT:
		return false
	default:
		return true
	}
}
