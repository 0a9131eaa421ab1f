// Command mmstreamer-plugin-example is a minimal controller plug-in built
// with `go build -buildmode=plugin`. It demonstrates the four-symbol ABI
// the controller bus resolves by name: it registers for Started/Stopped
// events, logs them, and answers a "ping" library message with "pong"
// via sendToLibrary.
//
// Build with:
//
//	go build -buildmode=plugin -o example.so ./cmd/mmstreamer-plugin-example
package main

import (
	"fmt"

	"github.com/mmstreamer/engine/internal/controller"
)

type pluginState struct {
	ef *controller.EngineFunctions
}

// Init, Uninit, OnCommand and OnEvent are declared as package-level
// variables of the exact named function types the controller loader
// resolves, so plugin.Lookup's type assertion succeeds; a plain func
// declaration would carry an unnamed (and therefore distinct) type.
var Init controller.InitFunc = func(ef *controller.EngineFunctions) (any, error) {
	state := &pluginState{ef: ef}
	ef.RegisterEvents(ef.EnginePrivateData, controller.Started|controller.Stopped)
	return state, nil
}

var Uninit controller.UninitFunc = func(instance any) error {
	state, ok := instance.(*pluginState)
	if !ok {
		return fmt.Errorf("mmstreamer-plugin-example: Uninit called with unexpected instance type %T", instance)
	}
	state.ef.UnregisterEvents(state.ef.EnginePrivateData, controller.All)
	return nil
}

var OnCommand controller.OnCommandFunc = func(instance any, data string) {
	if data == "ping" {
		state := instance.(*pluginState)
		state.ef.SendToLibrary(state.ef.EnginePrivateData, controller.Library{Name: "example", Data: "pong"}, nil)
	}
}

var OnEvent controller.OnEventFunc = func(instance any, ev controller.Event) {
	fmt.Printf("mmstreamer-plugin-example: received event %d on %q\n", ev.ID, ev.Name)
}

func main() {}
