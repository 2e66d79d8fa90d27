package context

import (
	"fmt"
	"go/ast"
	"go/token"
	"strconv"
)

func literalValue(lit *ast.BasicLit) (interface{}, error) {
	switch lit.Kind {
	case token.INT:
		n, err := strconv.Atoi(lit.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid integer literal %q: %w", lit.Value, err)
		}
		return n, nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float literal %q: %w", lit.Value, err)
		}
		return f, nil
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid string literal %q: %w", lit.Value, err)
		}
		return s, nil
	}
	return nil, &ErrForbidden{Detail: "literal kind " + lit.Kind.String()}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case nil:
		return false, nil
	}
	return false, fmt.Errorf("value is not a boolean: %v", v)
}

func applyUnary(op token.Token, x interface{}) (interface{}, error) {
	switch op {
	case token.NOT:
		b, err := toBool(x)
		if err != nil {
			return nil, err
		}
		return !b, nil
	case token.SUB:
		f, ok := toFloat(x)
		if !ok {
			return nil, fmt.Errorf("cannot negate non-numeric value")
		}
		if _, isInt := x.(int); isInt {
			return -x.(int), nil
		}
		return -f, nil
	}
	return nil, fmt.Errorf("unsupported unary operator %s", op)
}

func applyBinary(op token.Token, x, y interface{}) (interface{}, error) {
	switch op {
	case token.EQL:
		return equalValues(x, y), nil
	case token.NEQ:
		return !equalValues(x, y), nil
	}

	xf, xok := toFloat(x)
	yf, yok := toFloat(y)

	switch op {
	case token.ADD:
		if xs, ok := x.(string); ok {
			ys, ok2 := y.(string)
			if !ok2 {
				return nil, fmt.Errorf("cannot add string and non-string")
			}
			return xs + ys, nil
		}
		if !xok || !yok {
			return nil, fmt.Errorf("cannot add non-numeric operands")
		}
		return numericResult(x, y, xf+yf), nil
	case token.SUB:
		if !xok || !yok {
			return nil, fmt.Errorf("cannot subtract non-numeric operands")
		}
		return numericResult(x, y, xf-yf), nil
	case token.MUL:
		if !xok || !yok {
			return nil, fmt.Errorf("cannot multiply non-numeric operands")
		}
		return numericResult(x, y, xf*yf), nil
	case token.QUO:
		if !xok || !yok {
			return nil, fmt.Errorf("cannot divide non-numeric operands")
		}
		if yf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return xf / yf, nil
	case token.LSS, token.LEQ, token.GTR, token.GEQ:
		if !xok || !yok {
			return nil, fmt.Errorf("cannot compare non-numeric operands")
		}
		switch op {
		case token.LSS:
			return xf < yf, nil
		case token.LEQ:
			return xf <= yf, nil
		case token.GTR:
			return xf > yf, nil
		case token.GEQ:
			return xf >= yf, nil
		}
	}
	return nil, fmt.Errorf("unsupported binary operator %s", op)
}

func numericResult(x, y interface{}, f float64) interface{} {
	_, xInt := x.(int)
	_, yInt := y.(int)
	if xInt && yInt && f == float64(int(f)) {
		return int(f)
	}
	return f
}

func equalValues(x, y interface{}) bool {
	if xf, ok := toFloat(x); ok {
		if yf, ok2 := toFloat(y); ok2 {
			return xf == yf
		}
	}
	return fmt.Sprint(x) == fmt.Sprint(y)
}

func applyIndex(x, idx interface{}) (interface{}, error) {
	switch c := x.(type) {
	case []interface{}:
		f, ok := toFloat(idx)
		if !ok {
			return nil, fmt.Errorf("index must be numeric")
		}
		i := int(f)
		if i < 0 || i >= len(c) {
			return nil, fmt.Errorf("index out of range")
		}
		return c[i], nil
	case map[string]interface{}:
		key, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("map key must be a string")
		}
		v, ok := c[key]
		if !ok {
			return nil, fmt.Errorf("key %q not found", key)
		}
		return v, nil
	}
	return nil, fmt.Errorf("value is not indexable")
}

func builtinLen(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len takes exactly one argument")
	}
	switch v := args[0].(type) {
	case string:
		return len(v), nil
	case []interface{}:
		return len(v), nil
	case map[string]interface{}:
		return len(v), nil
	}
	return nil, fmt.Errorf("len: unsupported type %T", args[0])
}

func builtinAbs(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("abs takes exactly one argument")
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("abs: non-numeric argument")
	}
	if f < 0 {
		f = -f
	}
	return numericResult(args[0], args[0], f), nil
}

func builtinMax(args []interface{}) (interface{}, error) { return minMax(args, false) }
func builtinMin(args []interface{}) (interface{}, error) { return minMax(args, true) }

func minMax(args []interface{}, wantMin bool) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("max/min require at least one argument")
	}
	best := args[0]
	bestF, ok := toFloat(best)
	if !ok {
		return nil, fmt.Errorf("max/min: non-numeric argument")
	}
	for _, a := range args[1:] {
		f, ok := toFloat(a)
		if !ok {
			return nil, fmt.Errorf("max/min: non-numeric argument")
		}
		if (wantMin && f < bestF) || (!wantMin && f > bestF) {
			best, bestF = a, f
		}
	}
	return best, nil
}

func builtinBool(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("bool takes exactly one argument")
	}
	switch v := args[0].(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	case string:
		return v != "", nil
	}
	if f, ok := toFloat(args[0]); ok {
		return f != 0, nil
	}
	return true, nil
}

func builtinInt(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("int takes exactly one argument")
	}
	if f, ok := toFloat(args[0]); ok {
		return int(f), nil
	}
	if s, ok := args[0].(string); ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("int: cannot parse %q", s)
		}
		return n, nil
	}
	return nil, fmt.Errorf("int: unsupported type %T", args[0])
}

func builtinFloat(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("float takes exactly one argument")
	}
	if f, ok := toFloat(args[0]); ok {
		return f, nil
	}
	if s, ok := args[0].(string); ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("float: cannot parse %q", s)
		}
		return f, nil
	}
	return nil, fmt.Errorf("float: unsupported type %T", args[0])
}

func builtinStr(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("str takes exactly one argument")
	}
	return fmt.Sprint(args[0]), nil
}
