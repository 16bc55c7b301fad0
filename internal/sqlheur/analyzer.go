// Package sqlheur extracts approximate structure from SQL text without a grammar.
// Results are best effort: malformed input yields partial or empty results, never an error.
package sqlheur

import "strings"

// Analyzer is the narrow surface record models depend on, so a real parser can replace the heuristics.
type Analyzer interface {
	TablesInvolved(query string) []string
	NumJoins(query string) int
}

// Heuristic is the token based Analyzer.
type Heuristic struct{}

// Default is the Analyzer used by record models.
var Default Analyzer = Heuristic{}

func (Heuristic) TablesInvolved(query string) []string { return TablesInvolved(query) }

func (Heuristic) NumJoins(query string) int { return NumJoins(query) }

// NumJoins counts case-insensitive occurrences of "join ".
// It overcounts when the text appears inside literals or identifiers.
func NumJoins(query string) int {
	return strings.Count(strings.ToLower(query), "join ")
}

// TablesInvolved returns the token following every FROM, JOIN or AS keyword.
// Subqueries (a next token starting with "(") are skipped and commas are trimmed.
// Column aliases after AS are reported as tables as well.
func TablesInvolved(query string) []string {
	tokens := strings.Fields(query)
	tables := []string{}
	for i, tok := range tokens {
		switch strings.ToLower(tok) {
		case "from", "join", "as":
		default:
			continue
		}
		if i+1 >= len(tokens) {
			continue
		}
		next := tokens[i+1]
		if strings.HasPrefix(next, "(") {
			continue
		}
		if name := strings.Trim(next, ","); name != "" {
			tables = append(tables, name)
		}
	}
	return tables
}
