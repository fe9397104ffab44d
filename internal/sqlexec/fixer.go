// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"regexp"
	"strings"
)

// clause is a top-level SQL keyword position.
type clause struct {
	// Keyword is upper case with single spaces, e.g. "ORDER BY"
	Keyword string
	// Start is the offset of the keyword
	Start int
	// BodyStart is the offset right after the keyword
	BodyStart int
}

var reClauseKeyword = regexp.MustCompile(`^(?i)(group\s+by|order\s+by|where|having|limit|offset|from|union|intersect|except|window)\b`)

// topLevelClauses finds clause keywords outside parentheses, string literals,
// quoted identifiers and comments.
func topLevelClauses(q string) []clause {
	var out []clause
	depth := 0
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(q, i)
			continue
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			for i < len(q) && q[i] != '\n' {
				i++
			}
			continue
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			end := strings.Index(q[i+2:], "*/")
			if end < 0 {
				return out
			}
			i += end + 3
			continue
		case c == '(':
			depth++
			continue
		case c == ')':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth != 0 || (i > 0 && isWordByte(q[i-1])) {
			continue
		}
		if m := reClauseKeyword.FindStringSubmatch(q[i:]); m != nil {
			kw := strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
			out = append(out, clause{Keyword: kw, Start: i, BodyStart: i + len(m[0])})
			i += len(m[0]) - 1
		}
	}
	return out
}

// skipQuoted returns the index of the closing quote that matches q[i].
// Doubled quotes inside the literal are escapes.
func skipQuoted(q string, i int) int {
	quote := q[i]
	for j := i + 1; j < len(q); j++ {
		if q[j] != quote {
			continue
		}
		if j+1 < len(q) && q[j+1] == quote {
			j++
			continue
		}
		return j
	}
	return len(q)
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func findClause(cls []clause, kw string) (clause, int, bool) {
	for i, c := range cls {
		if c.Keyword == kw {
			return c, i, true
		}
	}
	return clause{}, -1, false
}

// clauseEnd returns where clause idx ends: the next clause or the end of q.
func clauseEnd(q string, cls []clause, idx int) int {
	if idx+1 < len(cls) {
		return cls[idx+1].Start
	}
	return len(q)
}

// SubstituteAggregate replaces every whole-word, case-insensitive use of
// function from with to.
func SubstituteAggregate(query, from, to string) string {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
	return re.ReplaceAllLiteralString(query, to)
}

// ReplaceAggregate rewrites calls of the non-portable aggregate from into the
// dialect's native one. One-argument calls get the dialect's separator and
// text cast when the native aggregate has no one-argument form.
func (d Dialect) ReplaceAggregate(query, from string) string {
	if d.AggregateSeparator == "" {
		return SubstituteAggregate(query, from, d.NativeAggregate)
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(from) + `\s*\(`)
	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(query, -1) {
		if loc[0] < last {
			continue
		}
		open := loc[1] - 1
		end := matchParen(query, open)
		if end < 0 {
			break
		}
		b.WriteString(query[last:loc[0]])
		b.WriteString(d.NativeAggregate + "(")
		args := splitTopLevel(query[open+1 : end])
		if len(args) == 1 {
			b.WriteString(d.aggregateArg(strings.TrimSpace(args[0])) + ", " + d.AggregateSeparator)
		} else {
			b.WriteString(query[open+1 : end])
		}
		b.WriteString(")")
		last = end + 1
	}
	b.WriteString(query[last:])
	return b.String()
}

var reDistinct = regexp.MustCompile(`(?i)^distinct\s+`)

func (d Dialect) aggregateArg(arg string) string {
	if d.AggregateTextType == "" {
		return arg
	}
	prefix := ""
	if m := reDistinct.FindString(arg); m != "" {
		prefix, arg = "DISTINCT ", arg[len(m):]
	}
	return prefix + "CAST(" + arg + " AS " + d.AggregateTextType + ")"
}

// matchParen returns the index of the parenthesis closing q[open], or -1.
func matchParen(q string, open int) int {
	depth := 0
	for i := open; i < len(q); i++ {
		switch q[i] {
		case '\'', '"', '`':
			i = skipQuoted(q, i)
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// StripLines removes every line that contains ident and trims the result.
func StripLines(query, ident string) string {
	lines := strings.Split(query, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if !strings.Contains(l, ident) {
			kept = append(kept, l)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

var reNumericID = regexp.MustCompile(`^-?\d+$`)

// Literal renders a subject id as a SQL literal: numeric ids are emitted
// unquoted, anything else is single-quoted with embedded quotes doubled.
func Literal(id string) string {
	id = strings.TrimSpace(id)
	if reNumericID.MatchString(id) {
		return id
	}
	return quote(id)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Scope restricts a query to the rows of one subject.
type Scope struct {
	// Column holds the subject identifier
	Column string
	// ID is the subject to keep
	ID string
	// QuoteID emits numeric ids as string literals as well
	QuoteID bool
}

// Literal renders the id for comparison with Column.
func (s Scope) Literal() string {
	if s.QuoteID {
		return quote(strings.TrimSpace(s.ID))
	}
	return Literal(s.ID)
}

// hasTopLevelOr reports whether a WHERE body has an OR outside parentheses
// and string literals.
func hasTopLevelOr(body string) bool {
	s := stripLiterals(body)
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case 'o', 'O':
			if depth != 0 || i+1 >= len(s) || (s[i+1] != 'r' && s[i+1] != 'R') {
				continue
			}
			if (i == 0 || !isWordByte(s[i-1])) && (i+2 == len(s) || !isWordByte(s[i+2])) {
				return true
			}
		}
	}
	return false
}

// compoundAlias names the derived table a compound query is wrapped in.
const compoundAlias = "scoped"

func isCompound(cls []clause) bool {
	for _, c := range cls {
		switch c.Keyword {
		case "UNION", "INTERSECT", "EXCEPT":
			return true
		}
	}
	return false
}

// Holds reports whether the top-level WHERE clause already restricts the
// column to the id and has no top-level OR that could widen it. A compound query
// never holds: its later branches are not covered by that WHERE.
func (s Scope) Holds(query string) bool {
	cls := topLevelClauses(query)
	if isCompound(cls) {
		return false
	}
	w, idx, ok := findClause(cls, "WHERE")
	if !ok {
		return false
	}
	body := query[w.BodyStart:clauseEnd(query, cls, idx)]
	if hasTopLevelOr(body) {
		return false
	}
	return subjectEquality(s.Column, s.ID).MatchString(body)
}

// Apply returns query restricted to the subject. A query that already holds
// is returned unchanged. A compound query is wrapped in a derived table and
// filtered as a whole. Otherwise the condition goes on its own line: first in
// an existing WHERE, with the original conditions ANDed on the next line
// (parenthesized when they contain OR), or in a new WHERE inserted before
// GROUP BY, HAVING, ORDER BY or LIMIT. Keeping the condition on its own line
// means dropping a line that names a bad column never drops the filter.
func (s Scope) Apply(query string) string {
	if strings.TrimSpace(s.ID) == "" || s.Holds(query) {
		return query
	}
	cls := topLevelClauses(query)
	if isCompound(cls) {
		return "SELECT * FROM (\n" + strings.TrimSpace(query) + "\n) AS " + compoundAlias +
			"\nWHERE " + compoundAlias + "." + s.Column + " = " + s.Literal()
	}
	target := s.Column
	if q := subjectQualifier(query, cls); q != "" {
		target = q + "." + s.Column
	}
	cond := target + " = " + s.Literal()

	if w, idx, ok := findClause(cls, "WHERE"); ok {
		end := clauseEnd(query, cls, idx)
		body := strings.TrimSpace(query[w.BodyStart:end])
		if hasTopLevelOr(body) {
			body = "(" + body + ")"
		}
		out := query[:w.BodyStart] + " " + cond + "\n  AND " + body
		if end < len(query) {
			out += "\n" + query[end:]
		}
		return out
	}

	insertAt := len(query)
	_, fromIdx, hasFrom := findClause(cls, "FROM")
	for i, c := range cls {
		if hasFrom && i <= fromIdx {
			continue
		}
		if c.Keyword != "FROM" {
			insertAt = c.Start
			break
		}
	}
	head := strings.TrimRight(query[:insertAt], " \t\r\n")
	if insertAt == len(query) {
		return head + "\nWHERE " + cond
	}
	return head + "\nWHERE " + cond + "\n" + query[insertAt:]
}

// HasSubjectFilter reports whether query already restricts col to id.
func HasSubjectFilter(query, col, id string) bool {
	return Scope{Column: col, ID: id}.Holds(query)
}

// subjectEquality matches col = id with the id as a quoted literal, or bare
// when it is numeric.
func subjectEquality(col, id string) *regexp.Regexp {
	id = strings.TrimSpace(id)
	lit := regexp.QuoteMeta(quote(id))
	if reNumericID.MatchString(id) {
		lit = `'?` + regexp.QuoteMeta(id) + `'?`
	}
	return regexp.MustCompile(`(?i)(?:^|[^\w.])(?:[\w"]+\.)?"?` + regexp.QuoteMeta(col) + `"?\s*=\s*` + lit + `(?:[^\w]|$)`)
}

// stripLiterals blanks string literal contents so keywords inside them are ignored.
func stripLiterals(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			end := skipQuoted(s, i)
			b.WriteString("''")
			i = end
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

var reFromHead = regexp.MustCompile(`^\s*([\w."]+)(?:\s+(?i:as\s+)?([\w"]+))?`)

var notAlias = map[string]bool{
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "CROSS": true,
	"NATURAL": true, "OUTER": true, "ON": true, "USING": true, "WHERE": true,
	"GROUP": true, "ORDER": true, "LIMIT": true, "HAVING": true,
}

// subjectQualifier returns the alias (or name) of the first FROM table when
// the FROM clause joins several tables, so the filter column is unambiguous.
func subjectQualifier(query string, cls []clause) string {
	f, idx, ok := findClause(cls, "FROM")
	if !ok {
		return ""
	}
	body := query[f.BodyStart:clauseEnd(query, cls, idx)]
	upper := strings.ToUpper(stripLiterals(body))
	if !strings.Contains(upper, "JOIN") && !strings.Contains(upper, ",") {
		return ""
	}
	m := reFromHead.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	if m[2] != "" && !notAlias[strings.ToUpper(m[2])] {
		return m[2]
	}
	return m[1]
}

// EnsureSubjectFilter restricts query to rows where col equals id. See
// Scope.Apply.
func EnsureSubjectFilter(query, col, id string) string {
	return Scope{Column: col, ID: id}.Apply(query)
}

// CastSubjectOrdering rewrites ORDER BY items that are the bare subject
// column (optionally qualified) to CAST(col AS intType), so identifiers
// order numerically.
func CastSubjectOrdering(query, col, intType string) string {
	cls := topLevelClauses(query)
	o, idx, ok := findClause(cls, "ORDER BY")
	if !ok {
		return query
	}
	end := clauseEnd(query, cls, idx)
	raw := query[o.BodyStart:end]
	trailing := raw[len(strings.TrimRight(raw, " \t\r\n")):]

	item := regexp.MustCompile(`(?i)^((?:[\w"]+\.)?"?` + regexp.QuoteMeta(col) + `"?)(\s+(?:asc|desc))?(\s+nulls\s+(?:first|last))?$`)
	parts := splitTopLevel(strings.TrimSpace(raw))
	changed := false
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if m := item.FindStringSubmatch(p); m != nil {
			p = "CAST(" + m[1] + " AS " + intType + ")" + m[2] + m[3]
			changed = true
		}
		parts[i] = p
	}
	if !changed {
		return query
	}
	return query[:o.BodyStart] + " " + strings.Join(parts, ", ") + trailing + query[end:]
}

// splitTopLevel splits on commas outside parentheses and literals.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'', '"', '`':
			i = skipQuoted(s, i)
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
