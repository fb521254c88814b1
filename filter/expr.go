// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package filter

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/grailbio/base/errors"
)

// Kind is the type of a Value.
type Kind uint8

const (
	Number Kind = iota
	String
	Bool
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case String:
		return "string"
	case Bool:
		return "bool"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is the result of evaluating an expression.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
}

// Num returns a Number value.
func Num(f float64) Value { return Value{Kind: Number, Num: f} }

// Str returns a String value.
func Str(s string) Value { return Value{Kind: String, Str: s} }

// BoolValue returns a Bool value.
func BoolValue(b bool) Value { return Value{Kind: Bool, Bool: b} }

// Env resolves the variables of an expression. Dotted names such as
// "feature.CD19" are looked up whole.
type Env interface {
	Lookup(name string) (Value, bool)
}

// Expr is a parsed filter expression. The syntax is that of Go expressions
// restricted to number and string literals, true and false, variables,
// parentheses, the operators ! && || == != < <= > >= + - * / and unary
// minus.
type Expr struct {
	src  string
	root ast.Expr
}

// ParseExpr parses src. Syntax errors and unsupported constructs are
// reported as errors.Invalid.
func ParseExpr(src string) (*Expr, error) {
	root, err := parser.ParseExpr(src)
	if err != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("filter expression %q", src), err)
	}
	if err := check(root); err != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("filter expression %q", src), err)
	}
	return &Expr{src: src, root: root}, nil
}

func (e *Expr) String() string { return e.src }

var binaryOps = map[token.Token]bool{
	token.LAND: true, token.LOR: true,
	token.EQL: true, token.NEQ: true, token.LSS: true, token.LEQ: true, token.GTR: true, token.GEQ: true,
	token.ADD: true, token.SUB: true, token.MUL: true, token.QUO: true,
}

func check(n ast.Expr) error {
	switch n := n.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT && n.Kind != token.STRING {
			return errors.E(fmt.Sprintf("unsupported literal %s", n.Value))
		}
	case *ast.Ident:
	case *ast.SelectorExpr:
		if _, ok := n.X.(*ast.Ident); !ok {
			return errors.E("unsupported selector")
		}
	case *ast.ParenExpr:
		return check(n.X)
	case *ast.UnaryExpr:
		if n.Op != token.NOT && n.Op != token.SUB {
			return errors.E(fmt.Sprintf("unsupported operator %s", n.Op))
		}
		return check(n.X)
	case *ast.BinaryExpr:
		if !binaryOps[n.Op] {
			return errors.E(fmt.Sprintf("unsupported operator %s", n.Op))
		}
		if err := check(n.X); err != nil {
			return err
		}
		return check(n.Y)
	default:
		return errors.E(fmt.Sprintf("unsupported expression %T", n))
	}
	return nil
}

// errMissing reports a variable the environment does not define.
type errMissing string

func (e errMissing) Error() string { return fmt.Sprintf("undefined variable %s", string(e)) }

// IsMissing reports whether err comes from an undefined variable.
func IsMissing(err error) bool {
	_, ok := err.(errMissing)
	return ok
}

// Eval evaluates the expression, which must produce a boolean.
func (e *Expr) Eval(env Env) (bool, error) {
	v, err := eval(e.root, env)
	if err != nil {
		return false, err
	}
	if v.Kind != Bool {
		return false, errors.E(fmt.Sprintf("filter expression %q: result is a %s", e.src, v.Kind))
	}
	return v.Bool, nil
}

func eval(n ast.Expr, env Env) (Value, error) {
	switch n := n.(type) {
	case *ast.BasicLit:
		if n.Kind == token.STRING {
			s, err := strconv.Unquote(n.Value)
			return Str(s), err
		}
		f, err := strconv.ParseFloat(n.Value, 64)
		return Num(f), err
	case *ast.Ident:
		switch n.Name {
		case "true":
			return BoolValue(true), nil
		case "false":
			return BoolValue(false), nil
		}
		return lookup(env, n.Name)
	case *ast.SelectorExpr:
		return lookup(env, n.X.(*ast.Ident).Name+"."+n.Sel.Name)
	case *ast.ParenExpr:
		return eval(n.X, env)
	case *ast.UnaryExpr:
		x, err := eval(n.X, env)
		if err != nil {
			return Value{}, err
		}
		if n.Op == token.NOT && x.Kind == Bool {
			return BoolValue(!x.Bool), nil
		}
		if n.Op == token.SUB && x.Kind == Number {
			return Num(-x.Num), nil
		}
		return Value{}, errors.E(fmt.Sprintf("operator %s on %s", n.Op, x.Kind))
	case *ast.BinaryExpr:
		return evalBinary(n, env)
	}
	return Value{}, errors.E(fmt.Sprintf("unsupported expression %T", n))
}

func lookup(env Env, name string) (Value, error) {
	if v, ok := env.Lookup(name); ok {
		return v, nil
	}
	return Value{}, errMissing(name)
}

func evalBinary(n *ast.BinaryExpr, env Env) (Value, error) {
	x, err := eval(n.X, env)
	if err != nil {
		return Value{}, err
	}
	if n.Op == token.LAND || n.Op == token.LOR {
		if x.Kind != Bool {
			return Value{}, errors.E(fmt.Sprintf("operator %s on %s", n.Op, x.Kind))
		}
		if (n.Op == token.LAND) != x.Bool {
			return x, nil
		}
		y, err := eval(n.Y, env)
		if err != nil {
			return Value{}, err
		}
		if y.Kind != Bool {
			return Value{}, errors.E(fmt.Sprintf("operator %s on %s", n.Op, y.Kind))
		}
		return y, nil
	}
	y, err := eval(n.Y, env)
	if err != nil {
		return Value{}, err
	}
	if x.Kind != y.Kind {
		return Value{}, errors.E(fmt.Sprintf("operator %s on %s and %s", n.Op, x.Kind, y.Kind))
	}
	switch n.Op {
	case token.EQL:
		return BoolValue(x == y), nil
	case token.NEQ:
		return BoolValue(x != y), nil
	}
	switch x.Kind {
	case Number:
		return numeric(n.Op, x.Num, y.Num)
	case String:
		switch n.Op {
		case token.LSS:
			return BoolValue(x.Str < y.Str), nil
		case token.LEQ:
			return BoolValue(x.Str <= y.Str), nil
		case token.GTR:
			return BoolValue(x.Str > y.Str), nil
		case token.GEQ:
			return BoolValue(x.Str >= y.Str), nil
		case token.ADD:
			return Str(x.Str + y.Str), nil
		}
	}
	return Value{}, errors.E(fmt.Sprintf("operator %s on %s", n.Op, x.Kind))
}

func numeric(op token.Token, x, y float64) (Value, error) {
	switch op {
	case token.LSS:
		return BoolValue(x < y), nil
	case token.LEQ:
		return BoolValue(x <= y), nil
	case token.GTR:
		return BoolValue(x > y), nil
	case token.GEQ:
		return BoolValue(x >= y), nil
	case token.ADD:
		return Num(x + y), nil
	case token.SUB:
		return Num(x - y), nil
	case token.MUL:
		return Num(x * y), nil
	case token.QUO:
		if y == 0 {
			return Value{}, errors.E("division by zero")
		}
		return Num(x / y), nil
	}
	return Value{}, errors.E(fmt.Sprintf("operator %s on numbers", op))
}
