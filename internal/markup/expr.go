package markup

import (
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var programs sync.Map // string -> *vm.Program

func compile(code string) (*vm.Program, error) {
	if p, ok := programs.Load(code); ok {
		return p.(*vm.Program), nil
	}
	p, err := expr.Compile(code,
		expr.AllowUndefinedVariables(),
		expr.DisableAllBuiltins(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", code, err)
	}
	programs.Store(code, p)
	return p, nil
}

// EvalValue runs a restricted expression: literals, arithmetic, comparison,
// boolean logic, `in`, member access on env values and the ternary
// operator. No builtin functions are available.
func EvalValue(code string, env Env) (any, error) {
	p, err := compile(code)
	if err != nil {
		return nil, err
	}
	if env == nil {
		env = Env{}
	}
	v, err := expr.Run(p, map[string]any(env))
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", code, err)
	}
	return v, nil
}

func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func Format(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}
