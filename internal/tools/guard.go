/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/speca-google/goes-agents-poc/internal/warehouse"
)

// ErrNotReadOnly is returned by CheckReadOnly for statements that may modify data.
var ErrNotReadOnly = errors.New("statement is not a read-only query")

const blockComment = `/\*(?:[^*]|\*+[^*/])*\*+/`

var trailingRules = []lexer.SimpleRule{
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_$]*`},
	{Name: "Number", Pattern: `\d+(?:\.\d*)?(?:[eE][-+]?\d+)?`},
	{Name: "Semicolon", Pattern: `;`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Punct", Pattern: `.`},
}

// sqlLexer tokenizes one dialect. Punct tokens listed in unterminated open a
// string or identifier the dialect's rules failed to close.
type sqlLexer struct {
	def          *lexer.StatefulDefinition
	names        map[lexer.TokenType]string
	unterminated string
}

func newSQLLexer(unterminated string, rules ...lexer.SimpleRule) *sqlLexer {
	def := lexer.MustSimple(append(rules, trailingRules...))
	names := make(map[lexer.TokenType]string)
	for name, typ := range def.Symbols() {
		names[typ] = name
	}
	return &sqlLexer{def: def, names: names, unterminated: unterminated}
}

var sqlLexers = map[warehouse.Lexicon]*sqlLexer{
	// PostgreSQL, DuckDB and SQL Server. Backslashes only escape inside E''
	// strings. Tagged dollar quotes are not lexed, so a bare "$" is rejected.
	warehouse.StandardSQL: newSQLLexer(`'"$`,
		lexer.SimpleRule{Name: "LineComment", Pattern: `--[^\n]*`},
		lexer.SimpleRule{Name: "BlockComment", Pattern: blockComment},
		lexer.SimpleRule{Name: "String", Pattern: `[eE]'(?:\\.|''|[^'\\])*'|'(?:''|[^'])*'|\$\$(?:[^$]|\$[^$])*\$\$`},
		lexer.SimpleRule{Name: "Quoted", Pattern: `"(?:""|[^"])*"|\[[^\]]*\]`},
	),
	warehouse.GoogleSQL: newSQLLexer("'\"`",
		lexer.SimpleRule{Name: "LineComment", Pattern: `(?:--|#)[^\n]*`},
		lexer.SimpleRule{Name: "BlockComment", Pattern: blockComment},
		lexer.SimpleRule{Name: "String", Pattern: `'''(?:[^'\\]|\\.|'(?:[^'\\]|\\.)|''(?:[^'\\]|\\.))*'''|"""(?:[^"\\]|\\.|"(?:[^"\\]|\\.)|""(?:[^"\\]|\\.))*"""|'(?:\\.|[^'\\])*'|"(?:\\.|[^"\\])*"`},
		lexer.SimpleRule{Name: "Quoted", Pattern: "`(?:\\\\.|[^`\\\\])*`"},
	),
	// "--" only opens a comment when followed by whitespace or the end of input.
	warehouse.MySQL: newSQLLexer("'\"`",
		lexer.SimpleRule{Name: "LineComment", Pattern: `#[^\n]*|--(?:[ \t\r\f\v][^\n]*)?(?:\n|$)`},
		lexer.SimpleRule{Name: "BlockComment", Pattern: blockComment},
		lexer.SimpleRule{Name: "String", Pattern: `'(?:\\.|''|[^'\\])*'|"(?:\\.|""|[^"\\])*"`},
		lexer.SimpleRule{Name: "Quoted", Pattern: "`(?:``|[^`])*`"},
	),
}

var mutatingKeywords = map[string]bool{
	"INSERT":      true,
	"UPDATE":      true,
	"DELETE":      true,
	"MERGE":       true,
	"DROP":        true,
	"CREATE":      true,
	"ALTER":       true,
	"TRUNCATE":    true,
	"GRANT":       true,
	"REVOKE":      true,
	"DENY":        true,
	"CALL":        true,
	"EXPORT":      true,
	"INTO":        true,
	"COPY":        true,
	"ATTACH":      true,
	"DETACH":      true,
	"INSTALL":     true,
	"PRAGMA":      true,
	"EXEC":        true,
	"EXECUTE":     true,
	"BACKUP":      true,
	"RESTORE":     true,
	"SHUTDOWN":    true,
	"KILL":        true,
	"DBCC":        true,
	"RECONFIGURE": true,
}

// CheckReadOnly accepts a single SELECT or WITH statement (an optional trailing
// semicolon is allowed) that names no data-modifying keyword outside strings,
// comments and quoted identifiers, as delimited by the given dialect. Rejections
// wrap ErrNotReadOnly.
func CheckReadOnly(lexicon warehouse.Lexicon, sqlText string) error {
	sl, ok := sqlLexers[lexicon]
	if !ok {
		sl = sqlLexers[warehouse.StandardSQL]
	}
	lex, err := sl.def.LexString("query", sqlText)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReadOnly, err)
	}

	first := true
	var ended, afterDot, tokenSeen bool
	for {
		tok, err := lex.Next()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotReadOnly, err)
		}
		if tok.EOF() {
			break
		}
		kind := sl.names[tok.Type]
		switch kind {
		case "Whitespace", "LineComment":
			continue
		case "BlockComment":
			// MySQL runs the body of /*! ... */ comments.
			if lexicon == warehouse.MySQL && strings.HasPrefix(tok.Value, "/*!") {
				return fmt.Errorf("%w: executable comment", ErrNotReadOnly)
			}
			continue
		case "Punct":
			if strings.Contains(sl.unterminated, tok.Value) {
				return fmt.Errorf("%w: unterminated or unsupported quote %s", ErrNotReadOnly, tok.Value)
			}
		}
		if ended {
			if kind == "Semicolon" {
				continue
			}
			return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
		}
		if kind == "Semicolon" {
			if !tokenSeen {
				continue
			}
			ended = true
			continue
		}
		tokenSeen = true

		if first {
			first = false
			if kind == "Punct" && tok.Value == "(" {
				// Parenthesized query: keep looking for the leading keyword.
				first = true
				continue
			}
			kw := strings.ToUpper(tok.Value)
			if kind != "Ident" || (kw != "SELECT" && kw != "WITH") {
				return fmt.Errorf("%w: must start with SELECT or WITH, got %q", ErrNotReadOnly, tok.Value)
			}
			continue
		}

		if kind == "Ident" && !afterDot && mutatingKeywords[strings.ToUpper(tok.Value)] {
			return fmt.Errorf("%w: contains %s", ErrNotReadOnly, strings.ToUpper(tok.Value))
		}
		afterDot = kind == "Punct" && tok.Value == "."
	}
	if !tokenSeen {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	return nil
}
