package bot

import (
	"context"
	"image"
	"time"

	"github.com/soocke/vision-bot-go/domain/capture"
)

// searchState tracks one find call through its polling lifecycle.
type searchState int

const (
	stateSearching searchState = iota
	stateFound
	stateTimedOut
)

func (s searchState) String() string {
	switch s {
	case stateSearching:
		return "searching"
	case stateFound:
		return "found"
	case stateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// poll runs capture+match cycles until fn reports a hit or the waiting budget
// elapses. The budget is checked once per iteration before the next capture,
// and every iteration sees a fresh frame. Capture failures and zero-sized
// frames count as "no match yet" with a short backoff; errors from fn abort
// immediately since retrying cannot fix them, so fn must itself absorb
// conditions a later capture could clear (such as a partially rendered
// frame). Frames are recycled after each iteration, so fn must not retain
// them.
func (b *Bot) poll(ctx context.Context, waiting time.Duration, fn func(frame *image.RGBA) (bool, error)) (searchState, error) {
	state := stateSearching
	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if time.Since(start) > waiting {
			state = stateTimedOut
			b.logDebug("search timed out", "waiting_ms", waiting.Milliseconds())
			return state, nil
		}
		frame, err := b.provider.Capture(ctx, nil)
		if err != nil || frame == nil || frame.Bounds().Empty() {
			if err != nil {
				b.logDebug("capture failed, retrying", "error", err)
			}
			time.Sleep(time.Millisecond)
			continue
		}
		hit, err := fn(frame)
		capture.RecycleFrame(frame)
		if err != nil {
			return state, err
		}
		if hit {
			state = stateFound
			b.logDebug("search hit", "elapsed_ms", time.Since(start).Milliseconds())
			return state, nil
		}
	}
}
