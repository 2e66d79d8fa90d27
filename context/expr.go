package context

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
)

// ErrForbidden is returned by Eval when an expression contains a
// construct outside the allowed subset (selector access, composite
// literals, function literals, anything calling something other than
// an allow-listed builtin).
type ErrForbidden struct {
	Detail string
}

func (e *ErrForbidden) Error() string { return "forbidden operation: " + e.Detail }

var allowedCalls = map[string]func([]interface{}) (interface{}, error){
	"len":   builtinLen,
	"abs":   builtinAbs,
	"max":   builtinMax,
	"min":   builtinMin,
	"bool":  builtinBool,
	"int":   builtinInt,
	"float": builtinFloat,
	"str":   builtinStr,
}

// Eval parses expression as a single Go expression and evaluates it
// against vars, rejecting any construct outside a small allowed
// subset: identifiers, literals, binary/unary/paren expressions,
// index expressions, and calls to the fixed builtin allow-list above.
// No selector access, no composite literals, no closures, no
// assignment — this is the read-only guard-expression sandbox used by
// when/unless conditions.
func Eval(expression string, vars map[string]interface{}) (interface{}, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression must be non-empty")
	}
	expr, err := parser.ParseExpr(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression syntax: %w", err)
	}
	if err := checkAllowed(expr); err != nil {
		return nil, err
	}
	return evalNode(expr, vars)
}

func checkAllowed(n ast.Node) error {
	var walkErr error
	ast.Inspect(n, func(node ast.Node) bool {
		if walkErr != nil {
			return false
		}
		switch v := node.(type) {
		case nil, *ast.Ident, *ast.BasicLit, *ast.ParenExpr, *ast.IndexExpr, *ast.BinaryExpr:
			// allowed
		case *ast.UnaryExpr:
			// allowed
		case *ast.CallExpr:
			ident, ok := v.Fun.(*ast.Ident)
			if !ok {
				walkErr = &ErrForbidden{Detail: "call to non-identifier function"}
				return false
			}
			if _, ok := allowedCalls[ident.Name]; !ok {
				walkErr = &ErrForbidden{Detail: "call to disallowed function " + ident.Name}
				return false
			}
		case *ast.SelectorExpr:
			walkErr = &ErrForbidden{Detail: "attribute access"}
			return false
		case *ast.FuncLit:
			walkErr = &ErrForbidden{Detail: "function literal"}
			return false
		case *ast.CompositeLit:
			walkErr = &ErrForbidden{Detail: "composite literal"}
			return false
		default:
			walkErr = &ErrForbidden{Detail: fmt.Sprintf("%T", node)}
			return false
		}
		return true
	})
	return walkErr
}

func evalNode(n ast.Expr, vars map[string]interface{}) (interface{}, error) {
	switch v := n.(type) {
	case *ast.ParenExpr:
		return evalNode(v.X, vars)
	case *ast.Ident:
		switch v.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, nil
		}
		val, ok := vars[v.Name]
		if !ok {
			return nil, fmt.Errorf("undefined variable %q", v.Name)
		}
		return val, nil
	case *ast.BasicLit:
		return literalValue(v)
	case *ast.UnaryExpr:
		x, err := evalNode(v.X, vars)
		if err != nil {
			return nil, err
		}
		return applyUnary(v.Op, x)
	case *ast.BinaryExpr:
		x, err := evalNode(v.X, vars)
		if err != nil {
			return nil, err
		}
		// short-circuit && / ||
		if v.Op == token.LAND || v.Op == token.LOR {
			xb, err := toBool(x)
			if err != nil {
				return nil, err
			}
			if v.Op == token.LAND && !xb {
				return false, nil
			}
			if v.Op == token.LOR && xb {
				return true, nil
			}
			y, err := evalNode(v.Y, vars)
			if err != nil {
				return nil, err
			}
			return toBool(y)
		}
		y, err := evalNode(v.Y, vars)
		if err != nil {
			return nil, err
		}
		return applyBinary(v.Op, x, y)
	case *ast.IndexExpr:
		x, err := evalNode(v.X, vars)
		if err != nil {
			return nil, err
		}
		idx, err := evalNode(v.Index, vars)
		if err != nil {
			return nil, err
		}
		return applyIndex(x, idx)
	case *ast.CallExpr:
		ident := v.Fun.(*ast.Ident)
		fn := allowedCalls[ident.Name]
		args := make([]interface{}, 0, len(v.Args))
		for _, a := range v.Args {
			av, err := evalNode(a, vars)
			if err != nil {
				return nil, err
			}
			args = append(args, av)
		}
		return fn(args)
	default:
		return nil, &ErrForbidden{Detail: fmt.Sprintf("%T", n)}
	}
}
