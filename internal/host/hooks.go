package host

import (
	"context"
	"fmt"
)

// Hook is an ordered list of named taps called with one argument.
type Hook[T any] struct {
	name string
	taps []tap[T]
}

type tap[T any] struct {
	name string
	fn   func(context.Context, T) error
}

// Tap registers fn under the plugin name. Taps run in registration order.
func (h *Hook[T]) Tap(name string, fn func(context.Context, T) error) {
	h.taps = append(h.taps, tap[T]{name: name, fn: fn})
}

// Taps returns the registered tap names in call order.
func (h *Hook[T]) Taps() []string {
	names := make([]string, len(h.taps))
	for i, t := range h.taps {
		names[i] = t.name
	}
	return names
}

// Call runs every tap sequentially and stops at the first failure.
func (h *Hook[T]) Call(ctx context.Context, arg T) error {
	for _, t := range h.taps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.fn(ctx, arg); err != nil {
			return &HookError{Hook: h.name, Tap: t.name, Err: err}
		}
	}
	return nil
}

// Hooks are the lifecycle points a compiler exposes to plugins.
type Hooks struct {
	// BeforeEntryResolution runs before any module is resolved.
	BeforeEntryResolution Hook[*EntrySet]
	// AfterChunksFinalized runs once chunk file names (templates, hashes)
	// are final and every asset is in memory.
	AfterChunksFinalized Hook[*Compilation]
	// BeforeAssetEmit runs immediately before assets are written.
	BeforeAssetEmit Hook[*Compilation]
	// Done runs after a successful write.
	Done Hook[*Stats]
}

// NewHooks returns an empty hook set with named hooks.
func NewHooks() *Hooks {
	h := &Hooks{}
	h.BeforeEntryResolution.name = "beforeEntryResolution"
	h.AfterChunksFinalized.name = "afterChunksFinalized"
	h.BeforeAssetEmit.name = "beforeAssetEmit"
	h.Done.name = "done"
	return h
}

// HookError wraps a tap failure with the hook and tap that raised it.
type HookError struct {
	Hook string
	Tap  string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Tap, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Compiler is what plugins are applied to.
type Compiler interface {
	Options() *Options
	Hooks() *Hooks
}

// Plugin hooks into a compiler. Apply runs once, when the compiler is
// constructed; configuration errors returned here abort construction.
type Plugin interface {
	Name() string
	Apply(Compiler) error
}
