// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package rules evaluates per-kind permission expressions.
//
// A rule is a CEL expression over two variables: caller, a map with id,
// domain and admin, and object, the document being read or written. It must
// evaluate to a bool.
package rules

import (
	"context"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/zeebo/errs"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
)

// Error is the default rules errs class.
var Error = errs.Class("rules")

// Operations a kind may restrict.
const (
	OpRead   = "read"
	OpWrite  = "write"
	OpDelete = "delete"
)

// Caller identifies who issues an operation.
type Caller struct {
	ID     string
	Domain string
	Admin  bool
}

type callerKey struct{}

// WithCaller attaches caller to ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller attached to ctx. Operations without a caller
// come from inside the process and are treated as admin.
func CallerFrom(ctx context.Context) Caller {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	if !ok {
		return Caller{Admin: true}
	}
	return caller
}

// Engine compiles and evaluates rules.
type Engine struct {
	env      *cel.Env
	programs sync.Map // map[string]cel.Program
}

// NewEngine creates an engine with the caller and object variables declared.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("caller", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("object", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Engine{env: env}, nil
}

// Compile checks that expression is a valid rule.
func (engine *Engine) Compile(expression string) error {
	_, err := engine.program(expression)
	return err
}

func (engine *Engine) program(expression string) (cel.Program, error) {
	if cached, ok := engine.programs.Load(expression); ok {
		return cached.(cel.Program), nil
	}

	ast, issues := engine.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, docerr.InvalidObject.New("rule %q: %v", expression, issues.Err())
	}
	program, err := engine.env.Program(ast)
	if err != nil {
		return nil, docerr.InvalidObject.New("rule %q: %v", expression, err)
	}

	engine.programs.Store(expression, program)
	return program, nil
}

// Check evaluates the rule of op in rules for caller and obj. A missing rule
// allows the operation. Admin callers bypass every rule.
func (engine *Engine) Check(rules map[string]string, op string, caller Caller, obj document.Object) error {
	if caller.Admin {
		return nil
	}
	expression, ok := rules[op]
	if !ok || expression == "" {
		return nil
	}

	program, err := engine.program(expression)
	if err != nil {
		return err
	}

	out, _, err := program.Eval(map[string]any{
		"caller": map[string]any{
			"id":     caller.ID,
			"domain": caller.Domain,
			"admin":  caller.Admin,
		},
		"object": map[string]any(obj),
	})
	if err != nil {
		return docerr.PermissionDenied.New("%s: rule failed: %v", op, err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return docerr.PermissionDenied.New("%s: rule did not return a bool", op)
	}
	if !allowed {
		return docerr.PermissionDenied.New("%s denied for %q", op, caller.ID)
	}
	return nil
}
