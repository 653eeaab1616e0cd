package curve

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// luaFunc is the global a curve script must define.
const luaFunc = "brightness"

// Lua is a curve defined by a script exposing brightness(step, steps).
// The Lua state is not safe for concurrent use.
type Lua struct {
	L  *lua.LState
	fn *lua.LFunction
}

// LoadLua runs the script at path and looks up its brightness function.
func LoadLua(path string) (*Lua, error) {
	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load curve script %s: %w", path, err)
	}
	return bind(L, path)
}

// LoadLuaString is LoadLua for an in-memory script.
func LoadLuaString(name, source string) (*Lua, error) {
	L := lua.NewState()
	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load curve script %s: %w", name, err)
	}
	return bind(L, name)
}

func bind(L *lua.LState, name string) (*Lua, error) {
	fn, ok := L.GetGlobal(luaFunc).(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("curve script %s does not define function %q", name, luaFunc)
	}
	return &Lua{L: L, fn: fn}, nil
}

// Level implements Curve. Fractional results are floored.
func (c *Lua) Level(step, steps int) (int, error) {
	err := c.L.CallByParam(lua.P{
		Fn:      c.fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(step), lua.LNumber(steps))
	if err != nil {
		return 0, err
	}

	ret := c.L.Get(-1)
	c.L.Pop(1)

	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("%s returned %s, want number", luaFunc, ret.Type())
	}
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s returned %v", luaFunc, f)
	}
	// Clamp as float first: int(1e30) is undefined.
	f = math.Max(MinLevel, math.Min(MaxLevel, f))
	return int(math.Floor(f)), nil
}

// Close releases the Lua state.
func (c *Lua) Close() {
	c.L.Close()
}
