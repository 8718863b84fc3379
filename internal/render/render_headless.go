//go:build headless

package render

import (
	"context"

	"github.com/satindergrewal/soundscape/internal/stream"
)

// Run is unavailable in headless builds.
func Run(_ context.Context, _ *stream.Broadcaster, _ Controller, _ <-chan struct{}, _, _ int, _ Options) error {
	return ErrNoDisplay
}
