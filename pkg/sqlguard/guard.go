// Package sqlguard decides whether a candidate statement is safe to run
// against a read-only connection.
//
// The check is lexical: the text is tokenized and every token is compared
// against a denylist of mutating keywords twice, once using the grammar's
// keyword classification and once using the raw token text. Text that
// cannot be tokenized is rejected.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// Denylist holds the statement keywords that may never reach the database.
var Denylist = []string{"DROP", "DELETE", "INSERT", "UPDATE", "ALTER", "TRUNCATE", "GRANT", "REVOKE"}

var denied = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Denylist))
	for _, k := range Denylist {
		m[k] = struct{}{}
	}
	return m
}()

// ErrDenied is the cause attached to rejections of denylisted keywords.
var ErrDenied = errors.New("sqlguard: denylisted keyword")

// Verdict is the outcome of Validate. Reason is empty when Valid is true.
// Denied is set when a denylisted keyword, not malformed text, caused the
// rejection.
type Verdict struct {
	Valid  bool
	Denied bool
	Reason string
}

func valid() Verdict { return Verdict{Valid: true} }
func invalid(reason string) Verdict { return Verdict{Reason: reason} }
func deny(reason string) Verdict { return Verdict{Denied: true, Reason: reason} }

// Validate classifies text as Valid or Invalid. It never panics and never
// touches a database.
func Validate(text string) Verdict {
	if strings.TrimSpace(text) == "" {
		return invalid("No SQL statement found.")
	}

	tkn := sqlparser.NewStringTokenizer(text)
	seen := 0
	for {
		typ, val := tkn.Scan()
		switch typ {
		case 0:
			if seen == 0 {
				return invalid("No SQL statement found.")
			}
			return valid()
		case sqlparser.LEX_ERROR:
			return invalid(fmt.Sprintf(
				"The SQL query provided is invalid or contains syntax errors. Details: unrecognized input near position %d",
				tkn.Position,
			))
		case sqlparser.COMMENT:
			continue
		}
		seen++

		if kw := strings.ToUpper(sqlparser.KeywordString(typ)); kw != "" {
			if _, bad := denied[kw]; bad {
				return deny(fmt.Sprintf("Mutable operation '%s' is not allowed in Read-Only mode.", kw))
			}
		}

		raw := strings.ToUpper(tokenText(typ, val))
		if _, bad := denied[raw]; bad {
			return deny(fmt.Sprintf("Forbidden keyword '%s' detected.", raw))
		}
	}
}

// tokenText gives the token as it appeared in the statement. The tokenizer
// strips quotes from string literals, so they are put back.
func tokenText(typ int, val []byte) string {
	if typ == sqlparser.STRING {
		return "'" + string(val) + "'"
	}
	return string(val)
}

// Cause returns ErrDenied for denylist rejections and nil otherwise.
func (v Verdict) Cause() error {
	if v.Denied {
		return ErrDenied
	}
	return nil
}

// ContractString renders a verdict the way the validate_sql tool reports it.
func ContractString(v Verdict) string {
	if v.Valid {
		return "VALID"
	}
	return "Error: " + v.Reason
}
