package syncutil

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/flowbridge/flowbridge/internal/obslog"
)

// SafeGo runs fn in a goroutine, recovering and logging any panic instead of
// crashing the process. The flow topologies launch their consumer loops
// with it, so a panicking Source ends that one consumer rather than the
// whole process; domain and publish workers recover per message inside
// their own loops instead.
func SafeGo(ctx context.Context, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic recovered: %v", r)
				obslog.L().ErrorContext(ctx, "goroutine panic", "error", err, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
