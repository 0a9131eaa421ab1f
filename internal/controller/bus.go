package controller

import (
	"log/slog"

	"github.com/google/uuid"

	enginerrors "github.com/mmstreamer/engine/internal/errors"
	"github.com/mmstreamer/engine/internal/logger"
	"github.com/mmstreamer/engine/internal/task"
)

type commandJob struct {
	cmd  Command
	done ActionDoneCallback
}

type libraryJob struct {
	lib  Library
	done ActionDoneCallback
}

// OnCommandDispatched is the control facade's hook: the bus calls it with
// every dequeued Command and reports the result through the job's
// ActionDoneCallback.
type OnCommandDispatched func(cmd Command) error

// Bus owns the three FIFO queues and the plug-in arena. Queue mutexes and
// semaphores are private to each queue; the arena has its own lock guarding
// membership and eventsMask mutation, matching the teacher's hook manager
// discipline of releasing the lock around the plug-in callback itself.
type Bus struct {
	log *slog.Logger

	commands *fifoQueue[commandJob]
	events   *fifoQueue[Event]
	messages *fifoQueue[libraryJob]

	arena *libArena

	commandTask *task.Task
	eventTask   *task.Task
	messageTask *task.Task

	onCommand OnCommandDispatched
}

// New constructs a Bus with an installed command-dispatch hook. onCommand
// may be nil if the control facade is wired up later via SetCommandHook.
func New(onCommand OnCommandDispatched) *Bus {
	return &Bus{
		log:       logger.WithComponent(logger.Logger(), "controller"),
		commands:  newFifoQueue[commandJob](),
		events:    newFifoQueue[Event](),
		messages:  newFifoQueue[libraryJob](),
		arena:     &libArena{},
		onCommand: onCommand,
	}
}

// SetCommandHook installs or replaces the control facade's command-dispatch
// callback.
func (b *Bus) SetCommandHook(fn OnCommandDispatched) {
	b.onCommand = fn
}

// LoadLibrary opens a plug-in, resolves its four symbols, assigns it an
// arena index and calls its init with an EngineFunctions closure capturing
// only that index. On any failure the library is not added to the arena.
func (b *Bus) LoadLibrary(cfg LibraryConfig) error {
	lib, err := loadOne(cfg)
	if err != nil {
		return err
	}

	b.arena.mu.Lock()
	index := len(b.arena.libs)
	b.arena.libs = append(b.arena.libs, lib)
	b.arena.mu.Unlock()

	ef := b.engineFunctionsFor(index)
	instance, err := lib.init(ef)
	if err != nil {
		b.arena.mu.Lock()
		b.arena.libs = b.arena.libs[:index]
		b.arena.mu.Unlock()
		return enginerrors.NewLibError("controller.LoadLibrary: init", cfg.Path, err)
	}

	b.arena.mu.Lock()
	lib.instance = instance
	b.arena.mu.Unlock()
	return nil
}

// engineFunctionsFor returns the EngineFunctions closure for the library at
// index. The closure captures index and the bus, never the *boundLib
// pointer itself, so the arena can be inspected/replaced without the
// plug-in holding a stale reference.
func (b *Bus) engineFunctionsFor(index int) *EngineFunctions {
	return &EngineFunctions{
		RegisterEvents: func(_ any, mask EventBit) {
			b.arena.mu.Lock()
			defer b.arena.mu.Unlock()
			if index < len(b.arena.libs) {
				b.arena.libs[index].eventsMask |= mask
			}
		},
		UnregisterEvents: func(_ any, mask EventBit) {
			b.arena.mu.Lock()
			defer b.arena.mu.Unlock()
			if index < len(b.arena.libs) {
				b.arena.libs[index].eventsMask &^= mask
			}
		},
		SendToEngine: func(_ any, cmd Command, done ActionDoneCallback) {
			b.commands.push(commandJob{cmd: cmd, done: done})
		},
		SendToLibrary: func(_ any, lib Library, done ActionDoneCallback) {
			b.messages.push(libraryJob{lib: lib, done: done})
		},
	}
}

// PostEvent enqueues a state-change notification for fan-out to subscribed
// plug-ins.
func (b *Bus) PostEvent(ev Event) {
	b.events.push(ev)
}

// Start launches the three dispatch tasks.
func (b *Bus) Start() error {
	b.commandTask = task.New("controller-commands", b.commandTick)
	b.eventTask = task.New("controller-events", b.eventTick)
	b.messageTask = task.New("controller-messages", b.messageTick)

	if err := b.commandTask.Start(); err != nil {
		return err
	}
	if err := b.eventTask.Start(); err != nil {
		b.commandTask.Stop()
		b.commands.sem.Post()
		b.commandTask.Join()
		return err
	}
	if err := b.messageTask.Start(); err != nil {
		b.eventTask.Stop()
		b.events.sem.Post()
		b.eventTask.Join()
		b.commandTask.Stop()
		b.commands.sem.Post()
		b.commandTask.Join()
		return err
	}
	return nil
}

// Stop clears all three queues before joining their tasks, so any
// in-flight ActionDone callback observes a shutting-down but consistent
// bus: no new work can appear in a cleared queue once a waiter wakes with
// ok == false.
func (b *Bus) Stop() {
	b.commandTask.Stop()
	b.eventTask.Stop()
	b.messageTask.Stop()

	b.commands.clear()
	b.events.clear()
	b.messages.clear()

	b.commands.sem.Post()
	b.events.sem.Post()
	b.messages.sem.Post()

	b.commandTask.Join()
	b.eventTask.Join()
	b.messageTask.Join()

	b.arena.mu.Lock()
	libs := b.arena.libs
	b.arena.libs = nil
	b.arena.mu.Unlock()

	for i := len(libs) - 1; i >= 0; i-- {
		lib := libs[i]
		if lib.instance != nil && lib.uninit != nil {
			if err := lib.uninit(lib.instance); err != nil {
				b.log.Warn("library uninit failed", "path", lib.path, "error", err)
			}
		}
	}
}

func (b *Bus) commandTick() bool {
	job, ok := b.commands.pop()
	if !ok {
		return !b.commandTask.Quit()
	}
	var err error
	if b.onCommand != nil {
		err = b.onCommand(job.cmd)
	} else {
		err = enginerrors.NewStateError("controller.commandTick", nil)
	}
	if job.done != nil {
		job.done(uuid.NewString(), err)
	}
	return true
}

// eventTick dispatches one event to the first subscribed library only, per
// the preserved first-match fan-out rule. The arena lock is released
// before invoking the plug-in callback so a re-entrant RegisterEvents call
// from within onEvent cannot deadlock.
func (b *Bus) eventTick() bool {
	ev, ok := b.events.pop()
	if !ok {
		return !b.eventTask.Quit()
	}

	b.arena.mu.Lock()
	var target *boundLib
	for _, lib := range b.arena.libs {
		if lib.eventsMask&ev.ID != 0 {
			target = lib
			break
		}
	}
	b.arena.mu.Unlock()

	if target != nil && target.onEvent != nil {
		target.onEvent(target.instance, ev)
	}
	return true
}

func (b *Bus) messageTick() bool {
	job, ok := b.messages.pop()
	if !ok {
		return !b.messageTask.Quit()
	}

	lib, collision := b.arena.findByPathSubstring(job.lib.Name)
	if collision {
		b.log.Warn("library name matched more than one loaded path; using first match", "name", job.lib.Name)
	}

	var err error
	if lib == nil {
		err = enginerrors.NewParamsError("controller.messageTick: no library matches "+job.lib.Name, nil)
	} else if lib.onCommand != nil {
		lib.onCommand(lib.instance, job.lib.Data)
	}

	if job.done != nil {
		job.done(uuid.NewString(), err)
	}
	return true
}
