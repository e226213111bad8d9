package ddl

import (
	"github.com/odvcencio/stratum/pkg/object"
)

// Operation is the action a DDL statement performs.
type Operation string

const (
	OpCreate       Operation = "CREATE"
	OpAlter        Operation = "ALTER"
	OpDrop         Operation = "DROP"
	OpUnclassified Operation = "UNCLASSIFIED"
)

// Statement is the typed result of classifying one DDL statement. When the
// grammar does not recognize the input, Op is OpUnclassified and Kind is
// KindUnclassified; callers must handle that variant, there is no silent
// best-effort branch.
type Statement struct {
	Op     Operation
	Kind   object.SchemaKind
	Schema string
	Name   string
	// Parent is the object this statement attaches to, when the grammar
	// implies one: the ON table of an index or trigger.
	Parent string
}

// Path returns the canonical "schema.name" path of the statement's
// subject, or just the name when unqualified.
func (s *Statement) Path() string {
	if s.Schema == "" {
		return s.Name
	}
	return s.Schema + "." + s.Name
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }
func (p *parser) next() token { t := p.toks[p.pos]; p.pos++; return t }
func (p *parser) atEOF() bool { return p.toks[p.pos].kind == tokEOF }

// acceptKeyword consumes the next token when it is the given keyword.
func (p *parser) acceptKeyword(kw string) bool {
	if p.peek().kind == tokWord && p.peek().keyword() == kw {
		p.pos++
		return true
	}
	return false
}

// qualifiedName reads IDENT or IDENT.IDENT, returning (schema, name, ok).
func (p *parser) qualifiedName() (string, string, bool) {
	if p.peek().kind != tokWord {
		return "", "", false
	}
	first := p.next().text
	if p.peek().kind == tokSymbol && p.peek().text == "." {
		p.pos++
		if p.peek().kind != tokWord {
			return "", "", false
		}
		return first, p.next().text, true
	}
	return "", first, true
}

var kindWords = map[string]object.SchemaKind{
	"table":     object.KindTable,
	"view":      object.KindView,
	"function":  object.KindFunction,
	"procedure": object.KindProcedure,
	"index":     object.KindIndex,
	"trigger":   object.KindTrigger,
	"sequence":  object.KindSequence,
	"type":      object.KindType,
}

// Classify parses the first DDL statement in def into a Statement.
// Unrecognized input never fails: it classifies as UNCLASSIFIED.
func Classify(def string) *Statement {
	p := &parser{toks: lex(def)}

	unclassified := &Statement{Op: OpUnclassified, Kind: object.KindUnclassified}
	if p.atEOF() {
		return unclassified
	}

	var op Operation
	switch p.peek().keyword() {
	case "create":
		op = OpCreate
	case "alter":
		op = OpAlter
	case "drop":
		op = OpDrop
	default:
		return unclassified
	}
	p.pos++

	// Optional modifiers between the verb and the kind word.
modifiers:
	for {
		switch p.peek().keyword() {
		case "or":
			p.pos++
			p.acceptKeyword("replace")
		case "unique", "temporary", "temp", "materialized", "global", "local", "concurrently":
			p.pos++
		default:
			break modifiers
		}
	}

	kindWord, ok := kindWords[p.peek().keyword()]
	if !ok {
		return unclassified
	}
	p.pos++

	// IF [NOT] EXISTS
	if p.acceptKeyword("if") {
		p.acceptKeyword("not")
		if !p.acceptKeyword("exists") {
			return unclassified
		}
	}

	schema, name, ok := p.qualifiedName()
	if !ok {
		return unclassified
	}

	stmt := &Statement{Op: op, Kind: kindWord, Schema: schema, Name: name}

	// Indexes and triggers attach to a parent table via ON.
	if kindWord == object.KindIndex || kindWord == object.KindTrigger {
		for !p.atEOF() {
			if p.acceptKeyword("on") {
				if ps, pn, ok := p.qualifiedName(); ok {
					stmt.Parent = joinPath(ps, pn)
				}
				break
			}
			p.pos++
		}
	}

	return stmt
}

func joinPath(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}
