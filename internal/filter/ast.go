package filter

import (
	"fmt"
	"strings"
	"time"
)

// Expression represents a node of a parsed filter.
type Expression interface {
	expressionNode()
	String() string
}

// BinaryExpr is a comparison or logical operation. Operator holds the
// lower-case keyword form (eq, lt, and, ...).
type BinaryExpr struct {
	Left     Expression
	Operator string
	Right    Expression
}

func (b *BinaryExpr) expressionNode() {}

func (b *BinaryExpr) String() string {
	return fmt.Sprintf("%s %s %s", b.Left.String(), b.Operator, b.Right.String())
}

// UnaryExpr is a logical negation.
type UnaryExpr struct {
	Operator string
	Operand  Expression
}

func (u *UnaryExpr) expressionNode() {}

func (u *UnaryExpr) String() string {
	return fmt.Sprintf("%s %s", u.Operator, u.Operand.String())
}

// Ident references a named field.
type Ident struct {
	Name string
}

func (i *Ident) expressionNode() {}

func (i *Ident) String() string {
	return i.Name
}

// Literal is a constant: int64, float64, string, bool, time.Time or nil.
type Literal struct {
	Value any
}

func (l *Literal) expressionNode() {}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "null"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case time.Time:
		return "'" + v.Format(time.RFC3339Nano) + "'"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FunctionCall is a call to one of the built-in functions.
type FunctionCall struct {
	Name string
	Args []Expression
}

func (f *FunctionCall) expressionNode() {}

func (f *FunctionCall) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(args, ", "))
}

// ParenExpr is a parenthesized expression.
type ParenExpr struct {
	Expr Expression
}

func (p *ParenExpr) expressionNode() {}

func (p *ParenExpr) String() string {
	return "(" + p.Expr.String() + ")"
}
