// Package toast provides transient user-visible notifications.
//
// A toast is fire-and-forget: it reports the outcome of an action (an
// admin write failing, a profile change saved) without blocking or
// rolling anything back. Delivery goes through an Emitter, typically the
// browsing context's event channel.
package toast

import "context"

// EventName is the event name dispatched for toasts.
// Client-side code should listen for this event.
const EventName = "shopfront:toast"

// Type represents the toast notification type.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// Emitter delivers a named event with a payload to the user's browsing
// context. Implementations must tolerate a disconnected context; toasts
// are best-effort.
type Emitter interface {
	Emit(ctx context.Context, event string, payload map[string]any)
}

// Show displays a toast notification to the user.
//
// The client receives an event with:
//   - event = "shopfront:toast"
//   - payload = { level: "success|error|warning|info", message: "..." }
func Show(ctx context.Context, e Emitter, level Type, message string) {
	if e == nil {
		return
	}
	e.Emit(ctx, EventName, map[string]any{
		"level":   string(level),
		"message": message,
	})
}

// Success shows a success toast.
//
//	toast.Success(ctx, emitter, "Order status updated successfully")
func Success(ctx context.Context, e Emitter, message string) {
	Show(ctx, e, TypeSuccess, message)
}

// Error shows an error toast.
//
//	toast.Error(ctx, emitter, "Failed to update order status")
func Error(ctx context.Context, e Emitter, message string) {
	Show(ctx, e, TypeError, message)
}

// Warning shows a warning toast.
func Warning(ctx context.Context, e Emitter, message string) {
	Show(ctx, e, TypeWarning, message)
}

// Info shows an info toast.
func Info(ctx context.Context, e Emitter, message string) {
	Show(ctx, e, TypeInfo, message)
}

// WithTitle shows a toast with a title and message.
func WithTitle(ctx context.Context, e Emitter, level Type, title, message string) {
	if e == nil {
		return
	}
	e.Emit(ctx, EventName, map[string]any{
		"level":   string(level),
		"title":   title,
		"message": message,
	})
}
