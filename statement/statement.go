// Package statement classifies SQL text without parsing it: it looks at the
// leading keyword (after comments and whitespace) and scans for positional
// placeholders outside of literals.
package statement

import (
	"strconv"
	"strings"
	"unicode"
)

// Kind is the coarse category of a statement.
type Kind int

const (
	// Other covers statements that neither read rows nor belong to a
	// transaction: ATTACH, DETACH, VACUUM, ANALYZE, REINDEX and empty text.
	Other Kind = iota
	Read
	Write
	Schema
	Begin
	Commit
	Rollback
	Savepoint
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case Schema:
		return "schema"
	case Begin:
		return "begin"
	case Commit:
		return "commit"
	case Rollback:
		return "rollback"
	case Savepoint:
		return "savepoint"
	}
	return "other"
}

// Modifies reports whether statements of this kind change data or schema,
// and therefore open an implicit transaction.
func (k Kind) Modifies() bool {
	return k == Write || k == Schema
}

// Transactional reports whether the statement is transaction control.
func (k Kind) Transactional() bool {
	return k == Begin || k == Commit || k == Rollback || k == Savepoint
}

var keywords = map[string]Kind{
	"SELECT":    Read,
	"WITH":      Read,
	"VALUES":    Read,
	"PRAGMA":    Read,
	"EXPLAIN":   Read,
	"INSERT":    Write,
	"UPDATE":    Write,
	"DELETE":    Write,
	"REPLACE":   Write,
	"CREATE":    Schema,
	"DROP":      Schema,
	"ALTER":     Schema,
	"BEGIN":     Begin,
	"COMMIT":    Commit,
	"END":       Commit,
	"ROLLBACK":  Rollback,
	"SAVEPOINT": Savepoint,
	"RELEASE":   Savepoint,
}

// Classify returns the kind of the first statement in sql. A ROLLBACK TO
// (a savepoint) is reported as Savepoint, since it leaves the enclosing
// transaction open.
func Classify(sql string) Kind {
	words := leadingWords(sql, 2)
	if len(words) == 0 {
		return Other
	}
	kind, ok := keywords[words[0]]
	if !ok {
		return Other
	}
	if kind == Read && words[0] == "WITH" && hasDMLKeyword(sql) {
		return Write
	}
	if kind == Rollback && len(words) > 1 && words[1] == "TO" {
		return Savepoint
	}
	if kind == Rollback && len(words) > 1 && words[1] == "TRANSACTION" {
		if w := leadingWords(sql, 3); len(w) > 2 && w[2] == "TO" {
			return Savepoint
		}
	}
	return kind
}

// ParseSavepoint splits a Savepoint statement into its verb (SAVEPOINT,
// RELEASE or ROLLBACK) and the upper-cased savepoint name. Both are empty
// for other statements; the name is empty when it is quoted.
func ParseSavepoint(sql string) (verb, name string) {
	if Classify(sql) != Savepoint {
		return "", ""
	}
	words := leadingWords(sql, 5)
	verb = words[0]
	for _, w := range words[1:] {
		switch {
		case verb == "SAVEPOINT":
		case w == "SAVEPOINT", verb == "ROLLBACK" && (w == "TRANSACTION" || w == "TO"):
			continue
		}
		return verb, w
	}
	return verb, ""
}

// hasDMLKeyword reports whether a common table expression drives a data
// modifying statement, as in WITH x AS (...) INSERT INTO ...
func hasDMLKeyword(sql string) bool {
	return firstDMLKeyword(sql) != ""
}

func firstDMLKeyword(sql string) string {
	found := ""
	scan(sql, func(word string) bool {
		switch upper := strings.ToUpper(word); upper {
		case "INSERT", "UPDATE", "DELETE", "REPLACE":
			found = upper
			return false
		}
		return true
	}, nil, nil)
	return found
}

// Inserts reports whether sql is an INSERT or REPLACE, the only statements
// that set the connection's last insert rowid.
func Inserts(sql string) bool {
	if Classify(sql) != Write {
		return false
	}
	switch firstDMLKeyword(sql) {
	case "INSERT", "REPLACE":
		return true
	}
	return false
}

// ReturnsRows reports whether executing sql may produce a result set.
func ReturnsRows(sql string) bool {
	switch Classify(sql) {
	case Read:
		return true
	case Write:
		return HasReturning(sql)
	}
	return false
}

// HasReturning reports whether a RETURNING clause appears outside of
// literals and comments.
func HasReturning(sql string) bool {
	found := false
	scan(sql, func(word string) bool {
		if strings.EqualFold(word, "RETURNING") {
			found = true
			return false
		}
		return true
	}, nil, nil)
	return found
}

// CountParams returns the number of positional parameters the statement
// expects: the number of bare "?" placeholders, or the highest "?NNN" index
// when numbered placeholders are used.
func CountParams(sql string) int {
	var bare, highest int
	scan(sql, nil, func(numbered string) {
		if numbered == "" {
			bare++
			if bare > highest {
				highest = bare
			}
			return
		}
		if n, err := strconv.Atoi(numbered); err == nil && n > highest {
			highest = n
		}
	}, nil)
	return highest
}

// Split separates a script into statements at top-level semicolons. The
// bodies of CREATE TRIGGER statements are kept whole. Statements are
// trimmed and empty ones dropped.
func Split(script string) []string {
	var (
		out        []string
		start      int
		words      int
		trigger    bool
		depth      int
		createSeen bool
	)
	flush := func(end int) {
		if stmt := strings.TrimSpace(script[start:end]); stmt != "" && len(leadingWords(stmt, 1)) > 0 {
			out = append(out, stmt)
		}
		start = end + 1
		words, trigger, depth, createSeen = 0, false, 0, false
	}
	scan(script, func(word string) bool {
		upper := strings.ToUpper(word)
		words++
		switch {
		case words == 1:
			createSeen = upper == "CREATE"
		case createSeen && words <= 4 && upper == "TRIGGER":
			trigger = true
		case trigger && (upper == "BEGIN" || upper == "CASE"):
			depth++
		case trigger && upper == "END":
			depth--
		}
		return true
	}, nil, func(i int) {
		if depth <= 0 {
			flush(i)
		}
	})
	flush(len(script))
	return out
}

func leadingWords(sql string, n int) []string {
	var out []string
	scan(sql, func(word string) bool {
		out = append(out, strings.ToUpper(word))
		return len(out) < n
	}, nil, nil)
	return out
}

// scan walks sql skipping string literals, quoted identifiers and comments.
// onWord receives each bare keyword or identifier and may stop the scan by
// returning false; onParam receives the digits following each "?"; onSemi
// receives the offset of each ";".
func scan(sql string, onWord func(string) bool, onParam func(string), onSemi func(int)) {
	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return
			}
			i += end + 4
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(sql, i, c)
		case c == '[':
			end := strings.IndexByte(sql[i:], ']')
			if end < 0 {
				return
			}
			i += end + 1
		case c == '?':
			j := i + 1
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			if onParam != nil {
				onParam(sql[i+1 : j])
			}
			i = j
		case c == ';':
			if onSemi != nil {
				onSemi(i)
			}
			i++
		case isWordByte(c):
			j := i
			for j < len(sql) && isWordByte(sql[j]) {
				j++
			}
			if onWord != nil && !onWord(sql[i:j]) {
				return
			}
			i = j
		default:
			i++
		}
	}
}

func skipQuoted(sql string, i int, quote byte) int {
	for j := i + 1; j < len(sql); j++ {
		if sql[j] == quote {
			if j+1 < len(sql) && sql[j+1] == quote {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(sql)
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}
