// Package conditions evaluates the predicate strings attached to
// conditional_items in manifests. A condition is a Lua boolean expression
// evaluated in a sandboxed state seeded with machine facts and the effective
// catalog list, e.g.:
//
//	os_vers_major >= 14 and machine_type == "laptop"
//	contains(catalogs, "testing")
package conditions

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Facts is the ambient evaluation context: scalar machine attributes plus
// string lists such as catalogs.
type Facts map[string]any

// Stubbed in tests.
var (
	hostname   = os.Hostname
	readSerial = machineSerial
)

// SerialNumber returns the machine serial, empty when unknown.
func SerialNumber() string {
	serial, err := readSerial()
	if err != nil {
		return ""
	}
	return serial
}

// DefaultFacts gathers the standard machine facts.
func DefaultFacts() Facts {
	facts := Facts{
		"arch":    runtime.GOARCH,
		"os_vers": osVersion(),
	}
	if name, err := hostname(); err == nil {
		facts["hostname"] = name
	}
	if serial, err := readSerial(); err == nil && serial != "" {
		facts["serial_number"] = serial
	}
	return facts
}

// Evaluate runs the condition against the facts. The returned error means
// the predicate was malformed or raised; callers treat that as false with a
// warning.
func Evaluate(condition string, facts Facts) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return false, fmt.Errorf("empty condition")
	}

	L := newSandboxState()
	defer L.Close()

	for key, value := range facts {
		lv, err := toLua(L, value)
		if err != nil {
			return false, fmt.Errorf("fact %s: %w", key, err)
		}
		L.SetGlobal(key, lv)
	}
	installContainsHelper(L)

	if err := L.DoString("return (" + condition + ")"); err != nil {
		return false, fmt.Errorf("condition %q: %w", condition, err)
	}
	result := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(result), nil
}

// newSandboxState opens only the side-effect-free libraries.
func newSandboxState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openLib := func(name string, f lua.LGFunction) {
		L.Push(L.NewFunction(f))
		L.Push(lua.LString(name))
		L.Call(1, 0)
	}
	openLib("base", lua.OpenBase)
	openLib("string", lua.OpenString)
	openLib("table", lua.OpenTable)
	openLib("math", lua.OpenMath)
	return L
}

// installContainsHelper adds contains(list, value) since membership tests are
// the most common predicate over catalogs.
func installContainsHelper(L *lua.LState) {
	L.SetGlobal("contains", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		needle := L.CheckAny(2)
		found := false
		tbl.ForEach(func(_, v lua.LValue) {
			if lua.LVAsString(v) == lua.LVAsString(needle) {
				found = true
			}
		})
		L.Push(lua.LBool(found))
		return 1
	}))
}

func toLua(L *lua.LState, value any) (lua.LValue, error) {
	switch v := value.(type) {
	case string:
		return lua.LString(v), nil
	case bool:
		return lua.LBool(v), nil
	case int:
		return lua.LNumber(v), nil
	case int64:
		return lua.LNumber(v), nil
	case float64:
		return lua.LNumber(v), nil
	case []string:
		tbl := L.NewTable()
		for _, item := range v {
			tbl.Append(lua.LString(item))
		}
		return tbl, nil
	default:
		return lua.LNil, fmt.Errorf("unsupported fact type %T", value)
	}
}
