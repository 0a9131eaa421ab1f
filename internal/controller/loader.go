package controller

import (
	"plugin"
	"strings"
	"sync"

	enginerrors "github.com/mmstreamer/engine/internal/errors"
)

// boundLib is one loaded plug-in. Per spec.md §9's cyclic-reference note,
// the bus owns an arena of these indexed by position; the EngineFunctions
// closure handed to a plug-in's init captures its index into that arena
// (and the bus that owns the arena), never a pointer to this struct.
type boundLib struct {
	path       string
	handle     *plugin.Plugin
	init       InitFunc
	uninit     UninitFunc
	onCommand  OnCommandFunc
	onEvent    OnEventFunc
	eventsMask EventBit
	instance   any
}

// libArena.mu guards arena membership and eventsMask mutation, per spec.md
// §4.D ("mutated only under the events-task lock").
type libArena struct {
	mu   sync.Mutex
	libs []*boundLib
}

func lookupSymbol[T any](p *plugin.Plugin, name string) (T, error) {
	var zero T
	sym, err := p.Lookup(name)
	if err != nil {
		return zero, err
	}
	fn, ok := sym.(T)
	if !ok {
		return zero, enginerrors.NewLibError("controller.lookupSymbol: "+name, "", nil)
	}
	return fn, nil
}

// loadOne opens path and resolves its four symbols, returning a bound
// library with eventsMask 0 and no engine functions wired yet (the caller
// wires EngineFunctions and calls init once the library has a stable
// arena index).
func loadOne(cfg LibraryConfig) (*boundLib, error) {
	p, err := plugin.Open(cfg.Path)
	if err != nil {
		return nil, enginerrors.NewLibError("controller.loadOne: open", cfg.Path, err)
	}

	initFn, err := lookupSymbol[InitFunc](p, cfg.InitSymbolName)
	if err != nil {
		return nil, enginerrors.NewLibError("controller.loadOne: resolve init", cfg.Path, err)
	}
	uninitFn, err := lookupSymbol[UninitFunc](p, cfg.UninitSymbolName)
	if err != nil {
		return nil, enginerrors.NewLibError("controller.loadOne: resolve uninit", cfg.Path, err)
	}
	onCommandFn, err := lookupSymbol[OnCommandFunc](p, cfg.OnCommandSymbolName)
	if err != nil {
		return nil, enginerrors.NewLibError("controller.loadOne: resolve onCommand", cfg.Path, err)
	}
	onEventFn, err := lookupSymbol[OnEventFunc](p, cfg.OnEventSymbolName)
	if err != nil {
		return nil, enginerrors.NewLibError("controller.loadOne: resolve onEvent", cfg.Path, err)
	}

	return &boundLib{
		path:      cfg.Path,
		handle:    p,
		init:      initFn,
		uninit:    uninitFn,
		onCommand: onCommandFn,
		onEvent:   onEventFn,
	}, nil
}

// findByPathSubstring returns the first loaded library whose path contains
// name as a substring, per spec.md §4.D's deliberate-but-ambiguous
// convenience matching. A collision (more than one match) is reported via
// the collision return for the caller to log.
func (a *libArena) findByPathSubstring(name string) (lib *boundLib, collision bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range a.libs {
		if strings.Contains(l.path, name) {
			if lib != nil {
				return lib, true
			}
			lib = l
		}
	}
	return lib, false
}
