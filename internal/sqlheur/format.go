package sqlheur

import "strings"

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokSpace
	tokPunct
	// tokComment holds a -- comment without its line end, or a whole /* */ comment.
	tokComment
)

type token struct {
	kind tokenKind
	text string
}

var keywords = toSet(
	"ALL", "ALTER", "AND", "AS", "ASC", "BETWEEN", "BY", "CASE", "CREATE", "CROSS", "DELETE", "DESC",
	"DISTINCT", "DROP", "ELSE", "END", "EXISTS", "FALSE", "FOR", "FROM", "FULL", "GROUP", "HAVING", "ILIKE",
	"IN", "INNER", "INSERT", "INTO", "IS", "JOIN", "LEFT", "LIKE", "LIMIT", "NATURAL", "NOT", "NULL",
	"OFFSET", "ON", "OR", "ORDER", "OUTER", "RETURNING", "RIGHT", "SELECT", "SET", "TABLE", "THEN",
	"TRUE", "UNION", "UPDATE", "USING", "VALUES", "WHEN", "WHERE", "WITH",
)

// clauses start on a new line when they appear outside parentheses.
var clauses = toSet(
	"SELECT", "FROM", "WHERE", "GROUP", "ORDER", "HAVING", "LIMIT", "OFFSET", "UNION", "VALUES", "SET",
	"RETURNING", "INSERT", "UPDATE", "DELETE", "WITH", "JOIN", "LEFT", "RIGHT", "INNER", "FULL", "CROSS",
	"NATURAL", "AND", "OR",
)

// joinLead words absorb the clause break of the word that follows them.
var joinLead = toSet("LEFT", "RIGHT", "INNER", "FULL", "CROSS", "NATURAL", "OUTER", "DELETE")

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Format reindents a statement: top level clauses start a new line, AND/OR are indented
// and keywords are upper-cased. Quoted literals, identifiers and comments are left untouched.
func Format(query string) string {
	var b strings.Builder
	depth := 0
	pending := false
	prev := ""
	inBetween := false

	space := func() {
		if pending && b.Len() > 0 {
			s := b.String()
			if !strings.HasSuffix(s, "(") && !strings.HasSuffix(s, "\n") {
				b.WriteByte(' ')
			}
		}
		pending = false
	}

	for _, t := range tokenize(query) {
		switch t.kind {
		case tokSpace:
			pending = true
		case tokString:
			space()
			b.WriteString(t.text)
			prev = ""
		case tokComment:
			space()
			b.WriteString(t.text)
			if strings.HasPrefix(t.text, "--") {
				b.WriteByte('\n')
			}
			prev = ""
		case tokPunct:
			switch t.text {
			case "(":
				space()
				depth++
			case ")":
				pending = false
				if depth > 0 {
					depth--
				}
			default:
				pending = false
			}
			b.WriteString(t.text)
			prev = ""
		case tokWord:
			up := strings.ToUpper(t.text)
			word := t.text
			if keywords[up] {
				word = up
			}
			brk := depth == 0 && b.Len() > 0 && clauses[up] && !(joinLead[prev] && (up == "JOIN" || up == "OUTER" || up == "FROM"))
			if up == "AND" && inBetween {
				brk = false
				inBetween = false
			}
			if up == "BETWEEN" {
				inBetween = true
			}
			if brk {
				if !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte('\n')
				}
				if up == "AND" || up == "OR" {
					b.WriteString("  ")
				}
				pending = false
			} else {
				space()
			}
			b.WriteString(word)
			prev = up
		}
	}
	return strings.TrimSpace(b.String())
}

func tokenize(s string) []token {
	var out []token
	r := []rune(s)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			j := i
			for j < len(r) && (r[j] == ' ' || r[j] == '\t' || r[j] == '\n' || r[j] == '\r') {
				j++
			}
			out = append(out, token{tokSpace, " "})
			i = j
		case c == '\'' || c == '"' || c == '`':
			j := i + 1
			for j < len(r) {
				if r[j] == c {
					// doubled quote is an escaped quote
					if j+1 < len(r) && r[j+1] == c {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			out = append(out, token{tokString, string(r[i:j])})
			i = j
		case startsComment(r, i):
			j := i + 2
			if c == '-' {
				for j < len(r) && r[j] != '\n' && r[j] != '\r' {
					j++
				}
			} else {
				for j < len(r) && !(r[j] == '*' && j+1 < len(r) && r[j+1] == '/') {
					j++
				}
				j = min(j+2, len(r))
			}
			out = append(out, token{tokComment, strings.TrimRight(string(r[i:j]), " \t")})
			i = j
		case c == '(' || c == ')' || c == ',' || c == ';':
			out = append(out, token{tokPunct, string(c)})
			i++
		default:
			j := i
			for j < len(r) && !strings.ContainsRune(" \t\n\r'\"`(),;", r[j]) && !startsComment(r, j) {
				j++
			}
			out = append(out, token{tokWord, string(r[i:j])})
			i = j
		}
	}
	return out
}

func startsComment(r []rune, i int) bool {
	if i+1 >= len(r) {
		return false
	}
	return (r[i] == '-' && r[i+1] == '-') || (r[i] == '/' && r[i+1] == '*')
}
