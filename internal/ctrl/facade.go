// Package ctrl implements the control facade: the sole destination of the
// controller bus's command-dispatch hook. It resolves a plug-in command id
// against a fixed table, splits "elementName;param" payloads where the
// table says the command carries one, and forwards to a caller-supplied
// handler catalogue.
package ctrl

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mmstreamer/engine/internal/controller"
	enginerrors "github.com/mmstreamer/engine/internal/errors"
	"github.com/mmstreamer/engine/internal/logger"
)

// HandlerFunc is one entry of the external handler catalogue: gfxElement is
// empty when the command's table entry has no element, data is the
// remaining (or entire) payload.
type HandlerFunc func(gfxElement string, data string) error

// ClickHandler processes a raw click on a graphical element and reports
// whether the click should raise a Clicked event.
type ClickHandler func(gfxElement string) (handled bool, err error)

// tableEntry is one row of the fixed command table (spec.md §6).
type tableEntry struct {
	handlerName      string
	gfxElementReq    bool
	dataContainsElem bool
}

// commandTable is read-only after package init, matching spec.md §9's
// "read-only after startup" note for the command/handler tables.
var commandTable = map[string]tableEntry{
	"CloseApplication": {"closeApplication", false, false},
	"ChangeLanguage":   {"changeLanguage", true, false},
	"SaveVideoElement": {"saveVideoElement", true, true},
	"TakeScreenshot":   {"takeScreenshot", false, false},

	"HideElement":     {"hideElement", false, false},
	"ShowElement":     {"showElement", false, false},
	"SetFocus":        {"setFocus", false, false},
	"HideGroup":       {"hideGroup", false, false},
	"ShowGroup":       {"showGroup", false, false},
	"SetClickable":    {"setClickable", false, false},
	"SetNotClickable": {"setNotClickable", false, false},

	"StopGraphics":   {"stopGraphics", false, false},
	"StartGraphics":  {"startGraphics", false, false},
	"StopVideo":      {"stopVideo", false, false},
	"StartVideo":     {"startVideo", false, false},
	"StopServer":     {"stopServer", false, false},
	"StartServer":    {"startServer", false, false},
	"SuspendServer":  {"suspendServer", false, false},
	"ResumeServer":   {"resumeServer", false, false},
	"StopClient":     {"stopClient", false, false},
	"StartClient":    {"startClient", false, false},

	"UpdateText":   {"updateText", true, true},
	"UpdateImage":  {"updateImage", true, true},
	"UpdateNav":    {"updateNav", true, true},
	"SendGfxEvent": {"sendGfxEvent", false, false},
}

// Envelope is the uniform shape handed to a handler after table lookup and
// elementName splitting.
type Envelope struct {
	ID                string
	TargetElementName string
	HandlerName       string
	HandlerData       string
}

// ClickedNotifier posts a Clicked event to the controller bus. Satisfied
// by *controller.Bus; narrowed to an interface so tests can substitute a
// stub without standing up a full bus.
type ClickedNotifier interface {
	PostEvent(ev controller.Event)
}

// Facade is the single-mutex dispatch point for engine commands and
// graphical-element clicks.
type Facade struct {
	mu sync.Mutex

	log      *slog.Logger
	handlers map[string]HandlerFunc
	onClick  ClickHandler
	notifier ClickedNotifier
}

// New builds a facade over a handler catalogue. handlers maps a table
// handlerName (e.g. "updateText") to the function that performs it;
// missing entries produce a ParamsError at dispatch time.
func New(handlers map[string]HandlerFunc, onClick ClickHandler, notifier ClickedNotifier) *Facade {
	return &Facade{
		log:      logger.WithComponent(logger.Logger(), "ctrl"),
		handlers: handlers,
		onClick:  onClick,
		notifier: notifier,
	}
}

// BuildEnvelope resolves a raw plug-in command id and data string into the
// uniform dispatch shape, per spec.md §6's table and the "elementName;"
// splitting rule.
func BuildEnvelope(id string, data string) (Envelope, error) {
	entry, ok := commandTable[id]
	if !ok {
		return Envelope{}, enginerrors.NewParamsError("ctrl.BuildEnvelope: unknown command id "+id, nil)
	}

	env := Envelope{ID: id, HandlerName: entry.handlerName, HandlerData: data}
	if entry.dataContainsElem {
		if idx := strings.IndexByte(data, ';'); idx >= 0 {
			env.TargetElementName = data[:idx]
			env.HandlerData = data[idx+1:]
		} else {
			env.TargetElementName = data
			env.HandlerData = ""
		}
	}
	return env, nil
}

// HandleCommand is the controller bus's onCommand hook entry point: it
// builds the envelope and invokes the matched handler under the facade
// lock.
func (f *Facade) HandleCommand(id string, data string) error {
	env, err := BuildEnvelope(id, data)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	handler, ok := f.handlers[env.HandlerName]
	if !ok {
		return enginerrors.NewParamsError("ctrl.HandleCommand: no handler registered for "+env.HandlerName, nil)
	}
	return handler(env.TargetElementName, env.HandlerData)
}

// HandleClick processes a click on a graphical element. The facade lock is
// held across the click-handler invocation but released before the Clicked
// event reaches the controller bus, since the posted event is the
// re-entry vector a plug-in's onCommand could use to call back into this
// facade, not the handler invocation itself.
func (f *Facade) HandleClick(gfxElement string) error {
	f.mu.Lock()
	handled, err := f.dispatchClickLocked(gfxElement)
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if handled && f.notifier != nil {
		traceID := uuid.NewString()
		f.log.Debug("click handled, posting Clicked event", "element", gfxElement, "trace_id", traceID)
		f.notifier.PostEvent(controller.Event{ID: controller.Clicked, Name: gfxElement})
	}
	return nil
}

func (f *Facade) dispatchClickLocked(gfxElement string) (bool, error) {
	if f.onClick == nil {
		return false, nil
	}
	return f.onClick(gfxElement)
}
