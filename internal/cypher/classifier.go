// Package cypher classifies Cypher text as read-only or mutating by lexical
// analysis. It never validates syntax; anything it cannot prove read-only is
// reported as Mutating.
package cypher

import (
	"fmt"
	"strings"
)

// Classification is the read/write verdict for a query. The zero value is
// Mutating.
type Classification int

const (
	Mutating Classification = iota
	ReadOnly
)

// String returns "read_only" or "mutating".
func (c Classification) String() string {
	if c == ReadOnly {
		return "read_only"
	}
	return "mutating"
}

// MarshalText implements encoding.TextMarshaler.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Classification) UnmarshalText(text []byte) error {
	switch string(text) {
	case "read_only":
		*c = ReadOnly
	case "mutating":
		*c = Mutating
	default:
		return fmt.Errorf("invalid classification %q", string(text))
	}
	return nil
}

// writeClauses are keywords that make a statement mutating wherever they
// appear as a clause.
var writeClauses = map[string]struct{}{
	"CREATE":     {},
	"MERGE":      {},
	"DELETE":     {},
	"DETACH":     {},
	"SET":        {},
	"REMOVE":     {},
	"DROP":       {},
	"FOREACH":    {},
	"LOAD":       {},
	"INSERT":     {},
	"ALTER":      {},
	"GRANT":      {},
	"DENY":       {},
	"REVOKE":     {},
	"RENAME":     {},
	"TERMINATE":  {},
	"DEALLOCATE": {},
	"REALLOCATE": {},
	"DRYRUN":     {},
}

// readOpeners are the clauses a read-only statement may start with once
// any EXPLAIN, PROFILE, CYPHER or USE prefix is skipped. A statement that
// opens with anything else is treated as mutating.
var readOpeners = map[string]struct{}{
	"MATCH":    {},
	"OPTIONAL": {},
	"WITH":     {},
	"UNWIND":   {},
	"RETURN":   {},
	"CALL":     {},
	"SHOW":     {},
	"UNION":    {},
	"FINISH":   {},
}

// lifecycleCommands only mutate as administration commands, which either
// open the statement or name their target right away. Elsewhere they are
// common variable names such as (start)-->(end).
var lifecycleCommands = map[string]struct{}{
	"START":  {},
	"STOP":   {},
	"ENABLE": {},
}

var lifecycleTargets = map[string]struct{}{
	"DATABASE": {},
	"SERVER":   {},
}

// StatementAnalysis is the verdict for one statement.
type StatementAnalysis struct {
	Text           string         `json:"text"`
	Classification Classification `json:"classification"`
	Reason         string         `json:"reason"`

	// Findings lists the write clauses and non-allow-listed procedures seen.
	Findings []string `json:"findings,omitempty"`
}

// Analysis is the verdict for a whole query.
type Analysis struct {
	Classification Classification      `json:"classification"`
	Reason         string              `json:"reason"`
	Statements     []StatementAnalysis `json:"statements"`
}

// Classify returns the classification of text. It is a pure function and
// safe for concurrent use.
func Classify(text string) Classification {
	return Analyze(text).Classification
}

// Analyze classifies text and explains the verdict per statement. A query
// is ReadOnly only when every statement is ReadOnly.
func Analyze(text string) Analysis {
	tokens, err := Tokenize(text)
	if err != nil {
		return Analysis{
			Classification: Mutating,
			Reason:         fmt.Sprintf("lexical error: %v", err),
		}
	}

	groups := splitTokens(tokens)
	if len(groups) == 0 {
		return Analysis{Classification: Mutating, Reason: "empty query"}
	}

	out := Analysis{Classification: ReadOnly, Statements: make([]StatementAnalysis, 0, len(groups))}
	for _, group := range groups {
		stmt := analyzeStatement(group)
		stmt.Text = statementText(text, group)
		if stmt.Classification == Mutating && out.Classification == ReadOnly {
			out.Classification = Mutating
			out.Reason = stmt.Reason
		}
		out.Statements = append(out.Statements, stmt)
	}
	if out.Classification == ReadOnly {
		out.Reason = "no write clauses or unlisted procedures"
	}
	if len(groups) > 1 && out.Classification == Mutating {
		out.Reason = fmt.Sprintf("%d statements, at least one mutating: %s", len(groups), out.Reason)
	}
	return out
}

// analyzeStatement scans the significant tokens of a single statement.
func analyzeStatement(tokens []Token) StatementAnalysis {
	a := &statementAnalyzer{tokens: tokens}
	a.run()
	if len(a.findings) == 0 {
		if opener, ok := a.opener(); !ok {
			a.flag(opener, fmt.Sprintf("statement opens with %s, not a read clause", opener))
		}
	}

	if len(a.findings) == 0 {
		return StatementAnalysis{Classification: ReadOnly, Reason: "no write clauses or unlisted procedures"}
	}
	return StatementAnalysis{
		Classification: Mutating,
		Reason:         a.reasons[0],
		Findings:       a.findings,
	}
}

type statementAnalyzer struct {
	tokens   []Token
	findings []string
	reasons  []string
}

func (a *statementAnalyzer) flag(finding, reason string) {
	a.findings = append(a.findings, finding)
	a.reasons = append(a.reasons, reason)
}

func (a *statementAnalyzer) at(i int) Token {
	if i < 0 || i >= len(a.tokens) {
		return Token{Type: EOF}
	}
	return a.tokens[i]
}

func (a *statementAnalyzer) isWord(i int, word string) bool {
	tok := a.at(i)
	return tok.Type == WORD && strings.EqualFold(tok.Value, word)
}

func (a *statementAnalyzer) run() {
	for i := 0; i < len(a.tokens); i++ {
		tok := a.tokens[i]
		if tok.Type != WORD || !a.isKeywordPosition(i) {
			continue
		}

		word := strings.ToUpper(tok.Value)
		switch {
		case word == "CALL":
			i = a.call(i)
		case word == "TRANSACTIONS" && a.followsIn(i):
			a.flag("IN TRANSACTIONS", "CALL { ... } IN TRANSACTIONS commits batches")
		default:
			if _, ok := writeClauses[word]; ok {
				a.flag(word, fmt.Sprintf("write clause %s", word))
				continue
			}
			if _, ok := lifecycleCommands[word]; ok {
				next := strings.ToUpper(a.at(i + 1).Value)
				if _, target := lifecycleTargets[next]; i == 0 || target {
					a.flag(word, fmt.Sprintf("administration command %s", word))
				}
			}
		}
	}
}

// opener returns the clause the statement starts with, past any EXPLAIN,
// PROFILE, CYPHER options or USE target, and whether it is a read clause.
func (a *statementAnalyzer) opener() (string, bool) {
	i := 0
	for {
		tok := a.at(i)
		if tok.Type != WORD {
			if tok.Type == EOF {
				return "end of statement", false
			}
			return fmt.Sprintf("%q", tok.Value), false
		}

		word := strings.ToUpper(tok.Value)
		switch word {
		case "EXPLAIN", "PROFILE":
			i++
		case "CYPHER":
			// CYPHER 5 runtime=parallel ...
			i++
			for {
				if a.at(i).Type == NUMBER {
					i++
				} else if a.at(i).Type == WORD && a.at(i+1).Type == OTHER && a.at(i+1).Value == "=" {
					i += 3
				} else {
					break
				}
			}
		case "USE":
			// USE db, USE composite.member, USE graph.byName('x')
			_, end := a.qualifiedName(i + 1)
			if end <= i {
				return "USE", false
			}
			i = end + 1
			if a.at(i).Type == OPENED_PARENS {
				i = a.matching(i, OPENED_PARENS, CLOSED_PARENS) + 1
			}
		default:
			_, ok := readOpeners[word]
			return word, ok
		}
	}
}

// isKeywordPosition excludes words that are property keys (n.set), labels
// and relationship types (:Delete), map keys and labelled variables
// ({create: 1}, (merge:Person)), property owners (merge.name) and aliases
// (AS remove).
func (a *statementAnalyzer) isKeywordPosition(i int) bool {
	switch a.at(i - 1).Type {
	case DOT, COLON:
		return false
	}
	switch a.at(i + 1).Type {
	case DOT, COLON:
		return false
	}
	if a.isWord(i-1, "AS") {
		return false
	}
	return true
}

// followsIn reports whether an IN keyword opens the few tokens before i,
// as in "} IN TRANSACTIONS" or "} IN 4 CONCURRENT TRANSACTIONS OF 10 ROWS".
func (a *statementAnalyzer) followsIn(i int) bool {
	for j := i - 1; j >= 0 && j >= i-4; j-- {
		if a.isWord(j, "IN") {
			return true
		}
	}
	return false
}

// call handles the token after CALL and returns the index of the last token
// it consumed.
func (a *statementAnalyzer) call(i int) int {
	next := a.at(i + 1)
	switch next.Type {
	case OPENED_BRACE:
		// Subquery body is scanned by the main loop.
		return i
	case OPENED_PARENS:
		// CALL (x, y) { ... } imports variables into a subquery.
		end := a.matching(i+1, OPENED_PARENS, CLOSED_PARENS)
		if a.at(end+1).Type == OPENED_BRACE {
			return end
		}
		a.flag("CALL", "unrecognized CALL form")
		return i
	case WORD, QUOTED_IDENT:
		name, end := a.qualifiedName(i + 1)
		if !IsReadOnlyProcedure(name) {
			a.flag("CALL "+name, fmt.Sprintf("procedure %s is not known to be read-only", name))
		}
		return end
	default:
		a.flag("CALL", "unrecognized CALL form")
		return i
	}
}

// qualifiedName reads name(.name)* starting at i and returns the joined
// name and the index of its last token.
func (a *statementAnalyzer) qualifiedName(i int) (string, int) {
	var parts []string
	for {
		tok := a.at(i)
		switch tok.Type {
		case WORD:
			parts = append(parts, tok.Value)
		case QUOTED_IDENT:
			parts = append(parts, unquote(tok.Value))
		default:
			return strings.Join(parts, "."), i - 1
		}
		if a.at(i+1).Type != DOT {
			return strings.Join(parts, "."), i
		}
		i += 2
	}
}

// matching returns the index of the token closing the bracket at i, or the
// last index when unbalanced.
func (a *statementAnalyzer) matching(i int, open, closing TokenType) int {
	depth := 0
	for j := i; j < len(a.tokens); j++ {
		switch a.tokens[j].Type {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return len(a.tokens) - 1
}

// unquote strips backticks from a quoted identifier and collapses escaped
// backticks.
func unquote(ident string) string {
	ident = strings.TrimPrefix(ident, "`")
	ident = strings.TrimSuffix(ident, "`")
	return strings.ReplaceAll(ident, "``", "`")
}

// QuoteIdentifier returns name as a backtick identifier safe to splice into
// Cypher text.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
