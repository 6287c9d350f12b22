package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func significant(t *testing.T, input string) []Token {
	t.Helper()
	tokens, err := Tokenize(input)
	require.NoError(t, err)

	var out []Token
	for _, tok := range tokens {
		if tok.Significant() && tok.Type != EOF {
			out = append(out, tok)
		}
	}
	return out
}

func TestTokenize_Basic(t *testing.T) {
	tokens := significant(t, "MATCH (n:Person {name: 'Alice'}) RETURN n.name")

	types := make([]TokenType, len(tokens))
	values := make([]string, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
		values[i] = tok.Value
	}

	assert.Equal(t, []TokenType{
		WORD, OPENED_PARENS, WORD, COLON, WORD, OPENED_BRACE, WORD, COLON, STRING,
		CLOSED_BRACE, CLOSED_PARENS, WORD, WORD, DOT, WORD,
	}, types)
	assert.Equal(t, []string{
		"MATCH", "(", "n", ":", "Person", "{", "name", ":", "'Alice'",
		"}", ")", "RETURN", "n", ".", "name",
	}, values)
}

func TestTokenize_Literals(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Token
	}{
		{name: "single quoted", input: `'it''s'`, want: Token{Type: STRING, Value: `'it'`}},
		{name: "escaped quote", input: `'it\'s'`, want: Token{Type: STRING, Value: `'it\'s'`}},
		{name: "double quoted", input: `"say \"hi\""`, want: Token{Type: STRING, Value: `"say \"hi\""`}},
		{name: "backtick", input: "`weird ``name`", want: Token{Type: QUOTED_IDENT, Value: "`weird ``name`"}},
		{name: "parameter", input: "$name", want: Token{Type: PARAMETER, Value: "$name"}},
		{name: "positional parameter", input: "$0", want: Token{Type: PARAMETER, Value: "$0"}},
		{name: "quoted parameter", input: "$`my param`", want: Token{Type: PARAMETER, Value: "$`my param`"}},
		{name: "float", input: "1.5e-3", want: Token{Type: NUMBER, Value: "1.5e-3"}},
		{name: "hex", input: "0xFF", want: Token{Type: NUMBER, Value: "0xFF"}},
		{name: "unicode identifier", input: "größe", want: Token{Type: WORD, Value: "größe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := significant(t, tt.input)
			require.NotEmpty(t, tokens)
			assert.Equal(t, tt.want.Type, tokens[0].Type)
			assert.Equal(t, tt.want.Value, tokens[0].Value)
		})
	}
}

func TestTokenize_RangeIsNotFloat(t *testing.T) {
	tokens := significant(t, "[1..3]")

	require.Len(t, tokens, 6)
	assert.Equal(t, "1", tokens[1].Value)
	assert.Equal(t, DOT, tokens[2].Type)
	assert.Equal(t, DOT, tokens[3].Type)
	assert.Equal(t, "3", tokens[4].Value)
}

func TestTokenize_Comments(t *testing.T) {
	tokens, err := Tokenize("MATCH (n) // CREATE (m)\n/* DELETE n */ RETURN n")
	require.NoError(t, err)

	var comments []string
	for _, tok := range tokens {
		if tok.Type == LINE_COMMENT || tok.Type == BLOCK_COMMENT {
			comments = append(comments, tok.Value)
		}
	}
	assert.Equal(t, []string{"// CREATE (m)", "/* DELETE n */"}, comments)
}

func TestTokenize_Positions(t *testing.T) {
	tokens := significant(t, "MATCH (n)\nRETURN n")

	ret := tokens[4]
	assert.Equal(t, "RETURN", ret.Value)
	assert.Equal(t, Position{Line: 2, Column: 1, Offset: 10}, ret.Position)
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   error
	}{
		{name: "unterminated string", input: "RETURN 'abc", err: ErrUnterminatedString},
		{name: "trailing escape", input: `RETURN 'abc\`, err: ErrUnterminatedString},
		{name: "unterminated identifier", input: "MATCH (`n) RETURN 1", err: ErrUnterminatedIdentifier},
		{name: "unterminated comment", input: "MATCH (n) /* RETURN n", err: ErrUnterminatedComment},
		{name: "bare dollar", input: "RETURN $ + 1", err: ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestTokenize_NulIsNotEOF(t *testing.T) {
	tokens := significant(t, "RETURN 1 \x00 CREATE (n)")

	var words []string
	for _, tok := range tokens {
		if tok.Type == WORD {
			words = append(words, tok.Value)
		}
	}
	assert.Equal(t, []string{"RETURN", "CREATE", "n"}, words)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single", input: "MATCH (n) RETURN n", want: []string{"MATCH (n) RETURN n"}},
		{name: "trailing terminator", input: "MATCH (n) RETURN n;", want: []string{"MATCH (n) RETURN n"}},
		{
			name:  "two statements",
			input: "MATCH (n) RETURN n; CREATE (m)",
			want:  []string{"MATCH (n) RETURN n", "CREATE (m)"},
		},
		{
			name:  "semicolon in string",
			input: "RETURN 'a;b' AS s",
			want:  []string{"RETURN 'a;b' AS s"},
		},
		{
			name:  "semicolon in identifier and comment",
			input: "RETURN 1 AS `a;b` // x;y",
			want:  []string{"RETURN 1 AS `a;b`"},
		},
		{name: "only comments", input: "// nothing;\n/* here */;", want: nil},
		{name: "empty", input: "  ;; ", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`Person`", QuoteIdentifier("Person"))
	assert.Equal(t, "`odd``name`", QuoteIdentifier("odd`name"))
	assert.Equal(t, "odd`name", unquote(QuoteIdentifier("odd`name")))
}
