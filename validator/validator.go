// Package validator decides whether a SQL string is a non-mutating read.
// Validation is lexical: string literals and comments are stripped, the
// statement head must be SELECT or WITH, only a single statement is
// permitted, and a blacklist of mutating keywords is scanned as whole
// words. No database access happens here.
package validator

import (
	"fmt"
	"regexp"
	"strings"
)

// ForbiddenKeywords are the mutating keywords rejected in any read query.
var ForbiddenKeywords = []string{
	"INSERT",
	"UPDATE",
	"DELETE",
	"DROP",
	"TRUNCATE",
	"ALTER",
	"CREATE",
	"GRANT",
	"REVOKE",
}

// Verdict is the outcome of validating one query.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Accepted returns a passing verdict.
func Accepted() Verdict { return Verdict{Allowed: true} }

// Rejected returns a failing verdict with the offending reason.
func Rejected(reason string) Verdict { return Verdict{Reason: reason} }

type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

// Validator checks SQL text against the read-only policy. The zero
// configuration (New with no extras) enforces the standard blacklist.
type Validator struct {
	patterns []keywordPattern
}

var headRe = regexp.MustCompile(`^[A-Za-z]+`)

func compileKeyword(kw string) keywordPattern {
	return keywordPattern{
		keyword: strings.ToLower(kw),
		re:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`),
	}
}

// New builds a Validator. Extra keywords extend the standard blacklist
// and are matched the same way, as case-insensitive whole words.
func New(extraKeywords ...string) *Validator {
	v := &Validator{}
	for _, kw := range ForbiddenKeywords {
		v.patterns = append(v.patterns, compileKeyword(kw))
	}
	for _, kw := range extraKeywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		v.patterns = append(v.patterns, compileKeyword(kw))
	}
	return v
}

// Validate inspects sqlText and returns a Verdict. It is a pure function
// of its input: no I/O, no state.
func (v *Validator) Validate(sqlText string) Verdict {
	if strings.TrimSpace(sqlText) == "" {
		return Rejected("empty query")
	}

	cleaned := strings.TrimSpace(stripStringsAndComments(sqlText))
	if cleaned == "" {
		return Rejected("empty query")
	}

	head := strings.ToUpper(headRe.FindString(cleaned))
	if head != "SELECT" && head != "WITH" {
		return Rejected("not a read query")
	}

	// Only one statement is permitted; anything after a semicolon that
	// survived stripping is a smuggled second statement.
	if idx := strings.Index(cleaned, ";"); idx >= 0 {
		if strings.TrimSpace(cleaned[idx+1:]) != "" {
			return Rejected("multiple statements are not allowed")
		}
	}

	for _, p := range v.patterns {
		if p.re.MatchString(cleaned) {
			return Rejected(fmt.Sprintf("Query contains forbidden keyword: %s", p.keyword))
		}
	}

	return Accepted()
}

// stripStringsAndComments blanks out SQL comments and replaces string
// literal contents with '' so keyword scanning neither trips over
// literal text nor misses keywords hidden by comments. Handles -- and
// /* */ comments, single-quoted strings with '' escapes, dollar-quoted
// strings, and double-quoted identifiers.
func stripStringsAndComments(sql string) string {
	var out strings.Builder
	i := 0
	n := len(sql)

	for i < n {
		// Line comment.
		if i+1 < n && sql[i] == '-' && sql[i+1] == '-' {
			for i < n && sql[i] != '\n' {
				i++
			}
			out.WriteByte(' ')
			continue
		}

		// Block comment.
		if i+1 < n && sql[i] == '/' && sql[i+1] == '*' {
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i += 2
			out.WriteByte(' ')
			continue
		}

		// Dollar-quoted string, $$...$$ or $tag$...$tag$.
		if sql[i] == '$' {
			if tagEnd := strings.Index(sql[i+1:], "$"); tagEnd >= 0 {
				tag := sql[i : i+tagEnd+2]
				if closeIdx := strings.Index(sql[i+len(tag):], tag); closeIdx >= 0 {
					i += len(tag) + closeIdx + len(tag)
					out.WriteString("''")
					continue
				}
			}
		}

		// Single-quoted string, '' escapes the quote.
		if sql[i] == '\'' {
			i++
			for i < n {
				if sql[i] == '\'' {
					if i+1 < n && sql[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			out.WriteString("''")
			continue
		}

		// Double-quoted identifier: kept verbatim, it names a column or
		// table and must stay visible to the word-boundary scan.
		if sql[i] == '"' {
			out.WriteByte('"')
			i++
			for i < n {
				if sql[i] == '"' {
					if i+1 < n && sql[i+1] == '"' {
						out.WriteString(`""`)
						i += 2
						continue
					}
					out.WriteByte('"')
					i++
					break
				}
				out.WriteByte(sql[i])
				i++
			}
			continue
		}

		out.WriteByte(sql[i])
		i++
	}

	return out.String()
}
