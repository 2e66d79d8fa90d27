package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalArithmeticAndComparison(t *testing.T) {
	vars := map[string]interface{}{"score": 85, "threshold": 80}
	v, err := Eval("score > threshold", vars)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Eval("score - threshold", vars)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestEvalLogicalShortCircuit(t *testing.T) {
	vars := map[string]interface{}{"a": true, "b": false}
	v, err := Eval("a && b", vars)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = Eval("a || b", vars)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEvalStringEquality(t *testing.T) {
	vars := map[string]interface{}{"status": "success"}
	v, err := Eval(`status == "success"`, vars)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEvalBuiltinFunctions(t *testing.T) {
	vars := map[string]interface{}{"items": []interface{}{1, 2, 3}}
	v, err := Eval("len(items) >= 3", vars)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Eval("abs(-5) == 5", nil)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Eval("max(1, 2, 3) == 3", nil)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEvalIndexAccess(t *testing.T) {
	vars := map[string]interface{}{"m": map[string]interface{}{"k": 42}}
	v, err := Eval(`m["k"] == 42`, vars)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEvalRejectsSelectorAccess(t *testing.T) {
	_, err := Eval("x.__class__", map[string]interface{}{"x": 1})
	require.Error(t, err)
	var f *ErrForbidden
	assert.ErrorAs(t, err, &f)
}

func TestEvalRejectsDisallowedCall(t *testing.T) {
	_, err := Eval(`exec("1")`, nil)
	require.Error(t, err)
}

func TestEvalRejectsUndefinedVariable(t *testing.T) {
	_, err := Eval("unknown_var > 1", map[string]interface{}{})
	assert.Error(t, err)
}

func TestEvalRejectsCompositeLiteral(t *testing.T) {
	_, err := Eval(`[]int{1,2,3}`, nil)
	assert.Error(t, err)
}
