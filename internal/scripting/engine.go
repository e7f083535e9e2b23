package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kamstrup/intmap"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/l1jgo/chunkact/internal/core/ecs"
	"github.com/l1jgo/chunkact/internal/world"
)

// Engine wraps a single gopher-lua VM running entity behaviours.
// Single-goroutine access only (game loop).
//
// An entity with a Script key uses the functions of the global table of that
// name (on_start, tick, on_stop); other entities use the global functions
// on_start_ticking, entity_tick and on_stop_ticking. Missing functions are
// skipped.
type Engine struct {
	vm     *lua.LState
	memory *intmap.Map[ecs.EntityID, *lua.LTable] // per-entity script state while ticking
	errors int
	log    *zap.Logger
}

type hook struct {
	global string
	field  string
}

var (
	hookStart = hook{global: "on_start_ticking", field: "on_start"}
	hookTick  = hook{global: "entity_tick", field: "tick"}
	hookStop  = hook{global: "on_stop_ticking", field: "on_stop"}
)

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{
		vm:     vm,
		memory: intmap.New[ecs.EntityID, *lua.LTable](64),
		log:    log,
	}
	e.registerHostAPI()

	// Load core scripts first, then entity behaviours
	for _, sub := range []string{"core", "entity"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

func (e *Engine) registerHostAPI() {
	e.vm.SetGlobal("log_info", e.vm.NewFunction(func(L *lua.LState) int {
		e.log.Info(L.CheckString(1), zap.String("source", "lua"))
		return 0
	}))
	e.vm.SetGlobal("log_debug", e.vm.NewFunction(func(L *lua.LState) int {
		e.log.Debug(L.CheckString(1), zap.String("source", "lua"))
		return 0
	}))
}

func (e *Engine) OnStartTicking(ent *world.Entity) {
	e.memory.Put(ent.ID, e.vm.NewTable())
	e.call(ent, hookStart)
}

func (e *Engine) Tick(ent *world.Entity) {
	e.call(ent, hookTick)
}

func (e *Engine) OnStopTicking(ent *world.Entity) {
	e.call(ent, hookStop)
	e.memory.Del(ent.ID)
}

// Errors returns the number of failed behaviour calls.
func (e *Engine) Errors() int { return e.errors }

func (e *Engine) lookup(ent *world.Entity, h hook) lua.LValue {
	if ent.Script != "" {
		tbl, ok := e.vm.GetGlobal(ent.Script).(*lua.LTable)
		if !ok {
			return lua.LNil
		}
		return tbl.RawGetString(h.field)
	}
	return e.vm.GetGlobal(h.global)
}

func (e *Engine) call(ent *world.Entity, h hook) {
	fn, ok := e.lookup(ent, h).(*lua.LFunction)
	if !ok {
		return
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, e.context(ent)); err != nil {
		e.errors++
		e.log.Error("lua behaviour error",
			zap.String("hook", h.global),
			zap.String("entity", ent.Name),
			zap.String("script", ent.Script),
			zap.Error(err),
		)
	}
}

// context builds the table passed to every hook.
func (e *Engine) context(ent *world.Entity) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("id", lua.LString(ent.ID.String()))
	t.RawSetString("name", lua.LString(ent.Name))
	t.RawSetString("kind", lua.LString(ent.Kind))
	t.RawSetString("script", lua.LString(ent.Script))
	t.RawSetString("world", lua.LString(ent.World))
	t.RawSetString("x", lua.LNumber(ent.X))
	t.RawSetString("y", lua.LNumber(ent.Y))
	t.RawSetString("z", lua.LNumber(ent.Z))
	if mem, ok := e.memory.Get(ent.ID); ok {
		t.RawSetString("memory", mem)
	}
	return t
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.memory.Clear()
	e.vm.Close()
}
