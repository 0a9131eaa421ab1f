package ctrl

import (
	"errors"
	"testing"

	"github.com/mmstreamer/engine/internal/controller"
)

func TestBuildEnvelopeSplitsElementNamePrefix(t *testing.T) {
	env, err := BuildEnvelope("UpdateText", "label1;3;1;12;2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.HandlerName != "updateText" {
		t.Fatalf("want handlerName updateText, got %q", env.HandlerName)
	}
	if env.TargetElementName != "label1" {
		t.Fatalf("want elementName label1, got %q", env.TargetElementName)
	}
	if env.HandlerData != "3;1;12;2" {
		t.Fatalf("want handlerData 3;1;12;2, got %q", env.HandlerData)
	}
}

func TestBuildEnvelopeLeavesDataWholeWhenNoElement(t *testing.T) {
	env, err := BuildEnvelope("StopGraphics", "layer;1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.HandlerName != "stopGraphics" {
		t.Fatalf("want handlerName stopGraphics, got %q", env.HandlerName)
	}
	if env.TargetElementName != "" {
		t.Fatalf("want no element name, got %q", env.TargetElementName)
	}
	if env.HandlerData != "layer;1" {
		t.Fatalf("want handlerData layer;1, got %q", env.HandlerData)
	}
}

func TestBuildEnvelopeUnknownIDErrors(t *testing.T) {
	_, err := BuildEnvelope("NotARealCommand", "x")
	if err == nil {
		t.Fatal("want error for unknown command id")
	}
}

func TestHandleCommandInvokesMatchedHandler(t *testing.T) {
	var gotElem, gotData string
	handlers := map[string]HandlerFunc{
		"updateText": func(elem, data string) error {
			gotElem, gotData = elem, data
			return nil
		},
	}
	f := New(handlers, nil, nil)

	if err := f.HandleCommand("UpdateText", "label1;3;1;12;2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotElem != "label1" || gotData != "3;1;12;2" {
		t.Fatalf("handler received wrong args: elem=%q data=%q", gotElem, gotData)
	}
}

func TestHandleCommandMissingHandlerErrors(t *testing.T) {
	f := New(map[string]HandlerFunc{}, nil, nil)
	err := f.HandleCommand("TakeScreenshot", "")
	if err == nil {
		t.Fatal("want error when no handler is registered")
	}
}

type stubNotifier struct {
	posted []controller.Event
}

func (s *stubNotifier) PostEvent(ev controller.Event) {
	s.posted = append(s.posted, ev)
}

func TestHandleClickPostsClickedEventOnlyWhenHandled(t *testing.T) {
	notifier := &stubNotifier{}
	f := New(nil, func(elem string) (bool, error) { return elem == "btn1", nil }, notifier)

	if err := f.HandleClick("btn2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.posted) != 0 {
		t.Fatalf("want no Clicked event for an unhandled click, got %v", notifier.posted)
	}

	if err := f.HandleClick("btn1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.posted) != 1 || notifier.posted[0].ID != controller.Clicked || notifier.posted[0].Name != "btn1" {
		t.Fatalf("want exactly one Clicked event for btn1, got %v", notifier.posted)
	}
}

func TestHandleClickPropagatesHandlerError(t *testing.T) {
	wantErr := errors.New("boom")
	f := New(nil, func(elem string) (bool, error) { return false, wantErr }, nil)

	if err := f.HandleClick("btn1"); !errors.Is(err, wantErr) {
		t.Fatalf("want wrapped handler error, got %v", err)
	}
}
