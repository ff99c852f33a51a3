package program

import "github.com/ironrail/stcore/internal/types"

// FunctionDef is a stateless POU returning a value through its name
// slot.
type FunctionDef struct {
	Name       string
	Using      []string
	ReturnType types.TypeId
	Params     []Param
	Locals     []LocalVar
	Body       []*Stmt
}

// FunctionBlockDef is a stateful POU invoked through an instance.
type FunctionBlockDef struct {
	Name   string
	Using  []string
	Base   string // base FB/class name, empty if none
	Params []Param
	Locals []LocalVar
	Body   []*Stmt
}

// ClassDef groups methods and instance variables, optionally deriving
// from a base class.
type ClassDef struct {
	Name    string
	Using   []string
	Base    string
	Locals  []LocalVar
	Methods []*MethodDef
}

// MethodDef is a POU bound to a class, recording override/final/abstract
// flags used by name-keyed dispatch up the parent chain.
type MethodDef struct {
	Name       string
	Using      []string
	ReturnType types.TypeId
	Params     []Param
	Locals     []LocalVar
	Body       []*Stmt
	Overrides  bool
	Abstract   bool
	Final      bool
}

// ProgramDef is a top-level POU scheduled directly by tasks.
type ProgramDef struct {
	Name   string
	Using  []string
	Locals []LocalVar
	Body   []*Stmt
}

// Program is the fully loaded, append-only program model for one run:
// every POU plus the globals/retains declared at the top level.
type Program struct {
	Registry *types.Registry

	Globals []GlobalVar
	Retains []GlobalVar // disjoint from Globals by declaration, see storage policy

	Functions      map[string]*FunctionDef
	FunctionBlocks map[string]*FunctionBlockDef
	Classes        map[string]*ClassDef
	Programs       map[string]*ProgramDef

	// FbInstanceVars lists, per declaring scope ("" for globals, else
	// POU name), the FB/class-typed VAR declarations that must be
	// materialized as instances at load time.
	FbInstanceVars []InstanceDecl
}

type GlobalVar struct {
	Name   string
	Type   types.TypeId
	Retain RetainPolicy
}

type InstanceDecl struct {
	Scope string // "" means global scope
	Name  string
	Type  string // FB/class type name
}

func NewProgram(reg *types.Registry) *Program {
	return &Program{
		Registry:       reg,
		Functions:      make(map[string]*FunctionDef),
		FunctionBlocks: make(map[string]*FunctionBlockDef),
		Classes:        make(map[string]*ClassDef),
		Programs:       make(map[string]*ProgramDef),
	}
}

// FindMethod looks up name (normalized upper-case by the caller) on
// class c, walking its base chain.
func (p *Program) FindMethod(className, methodName string) (*MethodDef, string, bool) {
	visited := map[string]bool{}
	cur := className
	for cur != "" {
		if visited[cur] {
			return nil, "", false
		}
		visited[cur] = true
		c, ok := p.Classes[cur]
		if !ok {
			return nil, "", false
		}
		for _, m := range c.Methods {
			if m.Name == methodName {
				return m, cur, true
			}
		}
		cur = c.Base
	}
	return nil, "", false
}
