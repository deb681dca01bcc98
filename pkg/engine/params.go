package engine

import "strconv"

// CountParams returns the number of bind parameters SQLite assigns to
// query, i.e. the largest parameter index.
func CountParams(query string) int {
	return len(ScanParams(query))
}

// CheckArity returns an *ArityError when args does not match the number
// of parameters of query.
func CheckArity(query string, args []any) error {
	if n := CountParams(query); n != len(args) {
		return &ArityError{SQL: query, Want: n, Got: len(args)}
	}
	return nil
}

// ScanParams returns the parameter names of query by index: element i
// names parameter i+1. A bare "?" takes the next index and has no name,
// "?NNN" uses index NNN, and ":name", "@name" and "$name" take the next
// index on their first occurrence and reuse it afterwards. A "$" inside an
// identifier does not start a parameter. Indexes only
// reachable through "?NNN" gaps have no name. String literals, quoted
// identifiers and comments are skipped.
//
// Malformed input (an unterminated literal, for instance) is scanned up
// to the point where it becomes malformed; the engine reports the syntax
// error when the statement is compiled.
func ScanParams(query string) []string {
	sql := []byte(query)
	var names []string
	seen := make(map[string]bool)

	for pos := 0; pos < len(sql); {
		c := sql[pos]
		switch {
		case c == '\'' || c == '"' || c == '`':
			pos = skipQuoted(sql, pos, c, c)
		case c == '[':
			pos = skipQuoted(sql, pos, '[', ']')
		case c == '-' && pos+1 < len(sql) && sql[pos+1] == '-':
			pos = skipSingleLineComment(sql, pos)
		case c == '/' && pos+1 < len(sql) && sql[pos+1] == '*':
			pos = skipMultiLineComment(sql, pos)
		case c == '?':
			pos++
			start := pos
			for pos < len(sql) && isDigit(sql[pos]) {
				pos++
			}
			if pos == start {
				names = append(names, "")
				continue
			}
			n, err := strconv.Atoi(string(sql[start:pos]))
			if err != nil || n < 1 {
				continue
			}
			for len(names) < n {
				names = append(names, "")
			}
		case (c == ':' || c == '@' || c == '$') && pos+1 < len(sql) && isIdentChar(sql[pos+1]):
			start := pos
			pos++
			for pos < len(sql) && isIdentChar(sql[pos]) {
				pos++
			}
			name := string(sql[start:pos])
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		case isIdentChar(c):
			// "$" may continue an identifier ("a$b") without starting
			// a parameter.
			for pos < len(sql) && (isIdentChar(sql[pos]) || sql[pos] == '$') {
				pos++
			}
		default:
			pos++
		}
	}
	return names
}

// skipQuoted returns the position just after the quoted section starting
// at pos. A doubled closing quote is an escaped quote.
func skipQuoted(sql []byte, pos int, open, close byte) int {
	pos++
	for pos < len(sql) {
		if sql[pos] == close {
			if open == close && pos+1 < len(sql) && sql[pos+1] == close {
				pos += 2
				continue
			}
			return pos + 1
		}
		pos++
	}
	return pos
}

func skipSingleLineComment(sql []byte, pos int) int {
	for pos < len(sql) && sql[pos] != '\n' {
		pos++
	}
	return pos
}

func skipMultiLineComment(sql []byte, pos int) int {
	pos += 2
	for pos+1 < len(sql) {
		if sql[pos] == '*' && sql[pos+1] == '/' {
			return pos + 2
		}
		pos++
	}
	return len(sql)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// isIdentChar accepts ASCII letters, digits, underscore and any byte of a
// multibyte UTF-8 sequence, which SQLite treats as identifier characters.
func isIdentChar(b byte) bool {
	return b == '_' || isDigit(b) || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b >= 0x80
}
