// Package events carries the plugin-facing event bus. The packet pipeline
// publishes typed events; a handler's decision can drop the packet or
// replace its payload before forwarding.
package events

import (
	"log/slog"
	"sync"
)

// Event names published by the packet pipeline.
const (
	PlayerLogin      = "player.login"
	PlayerJoin       = "player.join"
	PlayerSpawned    = "player.spawned"
	PlayerLogout     = "player.logout"
	PlayerLeave      = "player.leave"
	PlayerMove       = "player.move"
	PlayerChatbox    = "player.chatbox"
	PlayerRunCommand = "player.runCommand"
	PlayerUseBed     = "player.usebed"
	PlayerMount      = "player.mount"
	PlayerUnmount    = "player.unmount"
	ServerConsole    = "server.consoleMessage"
)

// Action is what a handler wants done with the packet that raised the event.
type Action int

const (
	ActPassThrough Action = iota // forward the original bytes unchanged
	ActDrop                      // silently discard the packet
	ActReplace                   // re-encode and forward Replacement instead
)

// Decision is the outcome of emitting one event.
type Decision struct {
	Action      Action
	Replacement map[string]any // set when Action == ActReplace
}

// PassThrough is the zero decision: forward unchanged.
var PassThrough = Decision{}

// Drop discards the packet.
var Drop = Decision{Action: ActDrop}

// Replace forwards a re-encoded packet built from payload.
func Replace(payload map[string]any) Decision {
	return Decision{Action: ActReplace, Replacement: payload}
}

// Handler receives an event payload and decides the packet's fate.
type Handler func(payload map[string]any) Decision

// Bus is an in-process handler registry. Handlers run synchronously on the
// publishing half's read loop; a slow handler stalls that packet stream.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for the named event.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Emit publishes an event and returns the first non-pass-through decision,
// or pass-through when every handler (or none) passes. A panicking handler
// is logged and treated as pass-through for that event only.
func (b *Bus) Emit(name string, payload map[string]any) Decision {
	b.mu.RLock()
	hs := b.handlers[name]
	b.mu.RUnlock()

	for _, h := range hs {
		d := b.call(name, h, payload)
		if d.Action != ActPassThrough {
			return d
		}
	}
	return PassThrough
}

func (b *Bus) call(name string, h Handler, payload map[string]any) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "event", name, "panic", r)
			d = PassThrough
		}
	}()
	return h(payload)
}
