package engine

import (
	"strconv"
	"strings"

	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/types"
	"github.com/ironrail/stcore/internal/vmerr"
)

// parsePathExpr parses a dotted name/index path — e.g. "motor.speed",
// "tanks[2].level" — into the Name/Field/Index expression shapes
// internal/eval already knows how to resolve. It deliberately does not
// implement the full ST expression grammar (operators, calls,
// literals): that grammar belongs to the front-end the rest of this
// module treats as an external collaborator. Watch expressions and the
// control protocol's eval/set commands are scoped to variable paths,
// which covers the common "inspect/poke a variable" use a debug client
// actually needs.
func parsePathExpr(s string) (*program.Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, vmerr.New(vmerr.InvalidConfig, "empty expression")
	}
	p := &pathParser{src: s}
	expr, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.src) {
		return nil, vmerr.New(vmerr.InvalidConfig, "unexpected trailing input in expression %q at %d", s, p.pos)
	}
	return expr, nil
}

type pathParser struct {
	src string
	pos int
}

func (p *pathParser) parsePath() (*program.Expr, error) {
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	expr := &program.Expr{Kind: program.ExprName, Name: name}
	for {
		switch {
		case p.peek() == '.':
			p.pos++
			field, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			expr = &program.Expr{Kind: program.ExprField, Base: expr, Field: field}
		case p.peek() == '[':
			p.pos++
			idx, err := p.parseIndices()
			if err != nil {
				return nil, err
			}
			// Indexing is only meaningful directly off a named array, so
			// Base's Name carries the target; nested field-then-index
			// resolves correctly because evalIndex re-evaluates Base.
			expr = &program.Expr{Kind: program.ExprIndex, Base: expr, Indices: idx}
		default:
			return expr, nil
		}
	}
}

func (p *pathParser) parseIndices() ([]*program.Expr, error) {
	var out []*program.Expr
	for {
		n, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		out = append(out, &program.Expr{Kind: program.ExprLiteral, Literal: &program.LiteralExpr{TypeId: types.DIntId(), IntVal: n}})
		switch p.peek() {
		case ',':
			p.pos++
			continue
		case ']':
			p.pos++
			return out, nil
		default:
			return nil, vmerr.New(vmerr.InvalidConfig, "expected ',' or ']' in %q at %d", p.src, p.pos)
		}
	}
}

func (p *pathParser) parseInt() (int64, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, vmerr.New(vmerr.InvalidConfig, "expected integer index in %q at %d", p.src, p.pos)
	}
	return strconv.ParseInt(p.src[start:p.pos], 10, 64)
}

func (p *pathParser) parseIdent() (string, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		isLetter := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if !(isLetter || (p.pos > start && isDigit)) {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", vmerr.New(vmerr.InvalidConfig, "expected identifier in %q at %d", p.src, p.pos)
	}
	return p.src[start:p.pos], nil
}

func (p *pathParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// pathExprToLValue rebuilds an assignable path the way exprToLValue
// does internally in internal/eval, since that helper is unexported.
// Only Name/Field/Index shapes are ever produced by parsePathExpr, so
// this mirrors exactly the subset internal/eval needs.
func pathExprToLValue(e *program.Expr) (*program.LValue, error) {
	switch e.Kind {
	case program.ExprName:
		return &program.LValue{Kind: program.LVName, Name: e.Name}, nil
	case program.ExprField:
		if e.Base.Kind != program.ExprName {
			return nil, vmerr.New(vmerr.TypeMismatch, "only one level of field/index nesting off a name is supported in control paths")
		}
		return &program.LValue{Kind: program.LVField, Name: e.Base.Name, Field: e.Field}, nil
	case program.ExprIndex:
		if e.Base.Kind != program.ExprName {
			return nil, vmerr.New(vmerr.TypeMismatch, "only one level of field/index nesting off a name is supported in control paths")
		}
		return &program.LValue{Kind: program.LVIndex, Name: e.Base.Name, Indices: e.Indices}, nil
	default:
		return nil, vmerr.New(vmerr.TypeMismatch, "expression is not addressable")
	}
}
