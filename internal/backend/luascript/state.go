// Package luascript implements a debugger back end whose debuggee is
// simulated by a Lua script.
//
// The script defines a global function stop(n) that returns the state of the
// n-th stop as a table, or nil once the program has exited:
//
//	function stop(n)
//	  if n > 2 then return nil end
//	  return {
//	    reason = n == 0 and "entry" or "step",
//	    threads = {
//	      { id = 1, name = "main", frames = {
//	        { name = "main", source = "main.lua", line = 10 + n, scopes = {
//	          { name = "Locals", variables = {
//	            { name = "i", type = "int", value = tostring(n) },
//	          } },
//	        } },
//	      } },
//	    },
//	  }
//	end
//
//	exit_code = 0
//
// Scripts run in a sandbox with only the base, table, string and math
// libraries.
package luascript

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// newSandbox creates a Lua state with only safe libraries opened.
func newSandbox() (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	libs := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name))
		if err != nil {
			L.Close()
			return nil, fmt.Errorf("open %s library: %w", lib.name, err)
		}
	}

	// The base library can load code from disk or strings.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	return L, nil
}

// callGlobal calls a global function with one argument and returns its
// first result. Errors raised by the script and panics are both returned.
func callGlobal(ctx context.Context, L *lua.LState, name string, arg lua.LValue) (ret lua.LValue, err error) {
	fn := L.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, fmt.Errorf("%q is not a function (got %s)", name, fn.Type())
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	L.SetContext(ctx)
	defer L.RemoveContext()

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, arg); err != nil {
		return lua.LNil, fmt.Errorf("call %s: %w", name, err)
	}
	ret = L.Get(-1)
	L.Pop(1)
	return ret, nil
}
