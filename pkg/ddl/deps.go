package ddl

import (
	"sort"
	"strings"

	"github.com/odvcencio/stratum/pkg/object"
)

// DependencyKind is the typed edge between two schema objects.
type DependencyKind string

const (
	DepForeignKey DependencyKind = "FOREIGN_KEY"
	DepTriggersOn DependencyKind = "TRIGGERS_ON"
	DepReferences DependencyKind = "REFERENCES"
	DepIndexes    DependencyKind = "INDEXES"
	DepCalls      DependencyKind = "CALLS"
	DepUses       DependencyKind = "USES"
	DepComposedOf DependencyKind = "COMPOSED_OF"
)

// Hard reports whether a dependent connected by this edge breaks outright
// when its dependency is dropped or altered, as opposed to merely
// degrading.
func (k DependencyKind) Hard() bool {
	switch k {
	case DepForeignKey, DepTriggersOn, DepComposedOf:
		return true
	}
	return false
}

// Reference is one extracted dependency edge: the parsed object depends
// on Target with the given kind.
type Reference struct {
	Kind   DependencyKind
	Target string // "schema.name" or bare name
}

// ExtractReferences parses a definition and returns the dependency edges
// it implies, deduplicated and sorted. The statement's own classification
// decides which grammar rules apply:
//
//   - REFERENCES <name>            -> FOREIGN_KEY (table constraints)
//   - trigger ON <name>            -> TRIGGERS_ON
//   - index ON <name>              -> INDEXES
//   - view/function FROM|JOIN <n>  -> USES
//   - CALL <name>                  -> CALLS
//   - nextval('<name>')            -> REFERENCES
//   - composite type member types  -> COMPOSED_OF (qualified names only)
func ExtractReferences(def string) []Reference {
	stmt := Classify(def)
	toks := lex(def)

	var refs []Reference
	add := func(kind DependencyKind, target string) {
		if target == "" || target == stmt.Path() {
			return
		}
		refs = append(refs, Reference{Kind: kind, Target: target})
	}

	switch stmt.Kind {
	case object.KindTrigger:
		add(DepTriggersOn, stmt.Parent)
	case object.KindIndex:
		add(DepIndexes, stmt.Parent)
	}

	p := &parser{toks: toks}
	for !p.atEOF() {
		switch p.peek().keyword() {
		case "references":
			p.pos++
			if s, n, ok := p.qualifiedName(); ok {
				add(DepForeignKey, joinPath(s, n))
			}
		case "from", "join":
			if stmt.Kind == object.KindView || stmt.Kind == object.KindFunction || stmt.Kind == object.KindProcedure {
				p.pos++
				if s, n, ok := p.qualifiedName(); ok {
					add(DepUses, joinPath(s, n))
				}
			} else {
				p.pos++
			}
		case "call", "perform":
			p.pos++
			if s, n, ok := p.qualifiedName(); ok {
				add(DepCalls, joinPath(s, n))
			}
		case "nextval":
			p.pos++
			if target := sequenceLiteralArg(p); target != "" {
				add(DepReferences, target)
			}
		default:
			p.pos++
		}
	}

	if stmt.Kind == object.KindType && stmt.Op == OpCreate {
		refs = append(refs, compositeMemberTypes(stmt, toks)...)
	}

	return dedupeReferences(refs)
}

// sequenceLiteralArg reads "('schema.seq')" after a nextval token.
func sequenceLiteralArg(p *parser) string {
	if p.peek().kind != tokSymbol || p.peek().text != "(" {
		return ""
	}
	p.pos++
	if p.peek().kind != tokString {
		return ""
	}
	lit := strings.Trim(p.next().text, "'")
	// Literals may carry a cast or quoted identifier form; keep the name.
	lit = strings.Trim(lit, `"`)
	return lit
}

// compositeMemberTypes extracts COMPOSED_OF edges from
// CREATE TYPE x AS (member othertype, ...). Only qualified type names
// count: bare words are indistinguishable from built-in types.
func compositeMemberTypes(stmt *Statement, toks []token) []Reference {
	p := &parser{toks: toks}
	// Advance to the open paren following AS.
	for !p.atEOF() {
		if p.acceptKeyword("as") {
			break
		}
		p.pos++
	}
	if p.atEOF() || p.peek().text != "(" {
		return nil
	}
	p.pos++

	var refs []Reference
	depth := 1
	expectType := false // true once a member name has been read
	for !p.atEOF() && depth > 0 {
		t := p.peek()
		switch {
		case t.kind == tokSymbol && t.text == "(":
			depth++
			p.pos++
		case t.kind == tokSymbol && t.text == ")":
			depth--
			p.pos++
		case t.kind == tokSymbol && t.text == ",":
			expectType = false
			p.pos++
		case t.kind == tokWord && !expectType:
			// Member name.
			expectType = true
			p.pos++
		case t.kind == tokWord && expectType:
			if s, n, ok := p.qualifiedName(); ok && s != "" {
				target := joinPath(s, n)
				if target != stmt.Path() {
					refs = append(refs, Reference{Kind: DepComposedOf, Target: target})
				}
			}
		default:
			p.pos++
		}
	}
	return refs
}

func dedupeReferences(refs []Reference) []Reference {
	seen := make(map[Reference]struct{}, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
