// Package ddl classifies database definition statements into a small
// typed AST and extracts the dependency edges a definition implies.
// Classification is grammar-driven: a tokenizer feeds a recursive-descent
// reader, and anything the grammar does not recognize falls out as an
// explicit UNCLASSIFIED statement instead of a best-effort guess.
package ddl

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokSymbol
	tokString
	tokNumber
	tokEOF
)

type token struct {
	kind tokenKind
	text string // identifiers keep their original spelling; match via keyword()
}

// keyword returns the token's lowercase form for keyword comparison.
func (t token) keyword() string {
	return strings.ToLower(t.text)
}

// lex tokenizes a DDL string, skipping whitespace, line comments (--),
// and block comments. String literals collapse to single tokens so names
// inside them are never mistaken for identifiers. Double-quoted
// identifiers are unquoted into plain word tokens.
func lex(input string) []token {
	var toks []token
	runes := []rune(input)
	i := 0
	n := len(runes)

	for i < n {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '-' && i+1 < n && runes[i+1] == '-':
			for i < n && runes[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && runes[i+1] == '*':
			i += 2
			for i+1 < n && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i += 2
		case c == '\'':
			start := i
			i++
			for i < n {
				if runes[i] == '\'' {
					// Doubled quote is an escaped quote inside the literal.
					if i+1 < n && runes[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			toks = append(toks, token{kind: tokString, text: string(runes[start:i])})
		case c == '"':
			i++
			start := i
			for i < n && runes[i] != '"' {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: string(runes[start:i])})
			if i < n {
				i++
			}
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < n && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '$') {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: string(runes[start:i])})
		case unicode.IsDigit(c):
			start := i
			for i < n && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: string(runes[start:i])})
		default:
			toks = append(toks, token{kind: tokSymbol, text: string(c)})
			i++
		}
	}

	toks = append(toks, token{kind: tokEOF})
	return toks
}
