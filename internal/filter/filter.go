package filter

import (
	"fmt"
	"strings"
	"time"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/pkg/types"
)

// Schema declares the fields a filter may reference and their data types.
type Schema map[string]types.DataType

// SchemaOf returns the schema of a type's properties.
func SchemaOf(t *types.Type) Schema {
	s := make(Schema, len(t.Properties))
	for _, p := range t.Properties {
		s[p.ID] = p.DataType
	}
	return s
}

// Filter is a compiled predicate.
type Filter struct {
	source string
	expr   Expression
}

// String returns the normalized form of the filter.
func (f *Filter) String() string {
	return f.expr.String()
}

// Source returns the text the filter was compiled from.
func (f *Filter) Source() string {
	return f.source
}

// Matches evaluates the filter against a record of field values. Values
// that cannot be compared make the comparison false.
func (f *Filter) Matches(record map[string]any) bool {
	v, _ := eval(f.expr, record).(bool)
	return v
}

type kind int

const (
	kindAny kind = iota
	kindBool
	kindNumber
	kindString
	kindTime
	kindNull
)

func kindOf(dt types.DataType) kind {
	switch {
	case dt == types.DataTypeBoolean:
		return kindBool
	case dt.IsNumeric():
		return kindNumber
	case dt == types.DataTypeString:
		return kindString
	case dt == types.DataTypeDateTime:
		return kindTime
	}
	return kindAny
}

type function struct {
	args   []kind
	result kind
	call   func(args []any) any
}

var functions = map[string]function{
	"contains": {args: []kind{kindString, kindString}, result: kindBool, call: func(a []any) any {
		return strings.Contains(a[0].(string), a[1].(string))
	}},
	"startswith": {args: []kind{kindString, kindString}, result: kindBool, call: func(a []any) any {
		return strings.HasPrefix(a[0].(string), a[1].(string))
	}},
	"endswith": {args: []kind{kindString, kindString}, result: kindBool, call: func(a []any) any {
		return strings.HasSuffix(a[0].(string), a[1].(string))
	}},
	"tolower": {args: []kind{kindString}, result: kindString, call: func(a []any) any {
		return strings.ToLower(a[0].(string))
	}},
	"toupper": {args: []kind{kindString}, result: kindString, call: func(a []any) any {
		return strings.ToUpper(a[0].(string))
	}},
	"length": {args: []kind{kindString}, result: kindNumber, call: func(a []any) any {
		return int64(len(a[0].(string)))
	}},
}

// Compile parses input and checks it against schema. Field names resolve
// exactly first, then case-insensitively. Every failure is an
// InvalidDefinition error.
func Compile(input string, schema Schema) (*Filter, error) {
	expr, err := Parse(input)
	if err != nil {
		return nil, invalid(input, err)
	}
	c := &checker{schema: schema}
	k, err := c.check(expr)
	if err != nil {
		return nil, invalid(input, err)
	}
	if k != kindBool {
		return nil, invalid(input, fmt.Errorf("expression does not yield a boolean"))
	}
	return &Filter{source: input, expr: expr}, nil
}

func invalid(input string, err error) error {
	return sdserrors.Wrap(sdserrors.ErrCategoryInvalidDefinition, sdserrors.CodeInvalidFilter,
		fmt.Sprintf("invalid filter %q", input), err)
}

type checker struct {
	schema Schema
}

func (c *checker) resolve(name string) (string, types.DataType, bool) {
	if dt, ok := c.schema[name]; ok {
		return name, dt, true
	}
	for field, dt := range c.schema {
		if strings.EqualFold(field, name) {
			return field, dt, true
		}
	}
	return "", "", false
}

func (c *checker) check(e Expression) (kind, error) {
	switch n := e.(type) {
	case *Ident:
		field, dt, ok := c.resolve(n.Name)
		if !ok {
			return 0, fmt.Errorf("unknown field %q", n.Name)
		}
		n.Name = field
		return kindOf(dt), nil
	case *Literal:
		switch n.Value.(type) {
		case nil:
			return kindNull, nil
		case bool:
			return kindBool, nil
		case int64, float64:
			return kindNumber, nil
		case string:
			return kindString, nil
		}
		return kindAny, nil
	case *ParenExpr:
		return c.check(n.Expr)
	case *UnaryExpr:
		k, err := c.check(n.Operand)
		if err != nil {
			return 0, err
		}
		if k != kindBool {
			return 0, fmt.Errorf("not requires a boolean operand")
		}
		return kindBool, nil
	case *FunctionCall:
		fn, ok := functions[n.Name]
		if !ok {
			return 0, fmt.Errorf("unknown function %q", n.Name)
		}
		if len(n.Args) != len(fn.args) {
			return 0, fmt.Errorf("%s takes %d arguments, got %d", n.Name, len(fn.args), len(n.Args))
		}
		for i, arg := range n.Args {
			k, err := c.check(arg)
			if err != nil {
				return 0, err
			}
			if k != fn.args[i] {
				return 0, fmt.Errorf("argument %d of %s must be a string", i+1, n.Name)
			}
		}
		return fn.result, nil
	case *BinaryExpr:
		return c.checkBinary(n)
	}
	return 0, fmt.Errorf("unsupported expression %s", e.String())
}

func (c *checker) checkBinary(n *BinaryExpr) (kind, error) {
	left, err := c.check(n.Left)
	if err != nil {
		return 0, err
	}
	right, err := c.check(n.Right)
	if err != nil {
		return 0, err
	}

	switch n.Operator {
	case "and", "or":
		if left != kindBool || right != kindBool {
			return 0, fmt.Errorf("%s requires boolean operands", n.Operator)
		}
		return kindBool, nil
	}

	if left == kindNull || right == kindNull {
		if n.Operator != "eq" && n.Operator != "ne" {
			return 0, fmt.Errorf("null only supports eq and ne")
		}
		return kindBool, nil
	}
	// Time fields compare against RFC 3339 string literals.
	if left == kindTime && right == kindString {
		if err := toTimeLiteral(n.Right); err != nil {
			return 0, err
		}
		right = kindTime
	}
	if right == kindTime && left == kindString {
		if err := toTimeLiteral(n.Left); err != nil {
			return 0, err
		}
		left = kindTime
	}
	if left != right && left != kindAny && right != kindAny {
		return 0, fmt.Errorf("cannot compare %s with %s", n.Left.String(), n.Right.String())
	}
	return kindBool, nil
}

func toTimeLiteral(e Expression) error {
	lit, ok := e.(*Literal)
	if !ok {
		return fmt.Errorf("cannot compare time with %s", e.String())
	}
	s, _ := lit.Value.(string)
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("%q is not an RFC 3339 time", s)
	}
	lit.Value = ts.UTC()
	return nil
}

func eval(e Expression, record map[string]any) any {
	switch n := e.(type) {
	case *Ident:
		return record[n.Name]
	case *Literal:
		return n.Value
	case *ParenExpr:
		return eval(n.Expr, record)
	case *UnaryExpr:
		v, _ := eval(n.Operand, record).(bool)
		return !v
	case *FunctionCall:
		fn := functions[n.Name]
		args := make([]any, len(n.Args))
		for i, arg := range n.Args {
			s, ok := eval(arg, record).(string)
			if !ok {
				return nil
			}
			args[i] = s
		}
		return fn.call(args)
	case *BinaryExpr:
		return evalBinary(n, record)
	}
	return nil
}

func evalBinary(n *BinaryExpr, record map[string]any) any {
	switch n.Operator {
	case "and":
		l, _ := eval(n.Left, record).(bool)
		if !l {
			return false
		}
		r, _ := eval(n.Right, record).(bool)
		return r
	case "or":
		l, _ := eval(n.Left, record).(bool)
		if l {
			return true
		}
		r, _ := eval(n.Right, record).(bool)
		return r
	}

	left := eval(n.Left, record)
	right := eval(n.Right, record)
	if left == nil || right == nil {
		switch n.Operator {
		case "eq":
			return left == nil && right == nil
		case "ne":
			return (left == nil) != (right == nil)
		}
		return false
	}

	c, err := types.Compare(left, right)
	if err != nil {
		return false
	}
	switch n.Operator {
	case "eq":
		return c == 0
	case "ne":
		return c != 0
	case "lt":
		return c < 0
	case "le":
		return c <= 0
	case "gt":
		return c > 0
	case "ge":
		return c >= 0
	}
	return false
}

// Comparison is one property test inside a filter: a comparison operator or
// a function applied to the property.
type Comparison struct {
	Property string
	Operator string
}

// Comparisons lists the property tests of the filter in source order.
func (f *Filter) Comparisons() []Comparison {
	var out []Comparison
	var walk func(Expression)
	walk = func(e Expression) {
		switch n := e.(type) {
		case *ParenExpr:
			walk(n.Expr)
		case *UnaryExpr:
			walk(n.Operand)
		case *BinaryExpr:
			if n.Operator == "and" || n.Operator == "or" {
				walk(n.Left)
				walk(n.Right)
				return
			}
			for _, side := range []Expression{n.Left, n.Right} {
				if id, ok := side.(*Ident); ok {
					out = append(out, Comparison{Property: id.Name, Operator: n.Operator})
				}
			}
		case *FunctionCall:
			for _, arg := range n.Args {
				if id, ok := arg.(*Ident); ok {
					out = append(out, Comparison{Property: id.Name, Operator: n.Name})
				}
			}
		}
	}
	walk(f.expr)
	return out
}
