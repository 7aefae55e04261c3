package throttle

import "time"

// compactThreshold is the minimum number of expired ticks held before the
// backing slice is truncated.
const compactThreshold = 100

// tickWindow records task start times and counts those inside the trailing
// interval.
//
// Ticks are appended in order. start marks the oldest tick that may still be
// inside the window; everything before it has expired. The expired prefix is
// dropped only once it is both larger than compactThreshold and more than
// half the slice, so each tick is copied a constant number of times on
// average.
type tickWindow struct {
	interval time.Duration
	ticks    []time.Time
	start    int
}

func newTickWindow(interval time.Duration) *tickWindow {
	return &tickWindow{interval: interval}
}

// consume records a start at now.
func (w *tickWindow) consume(now time.Time) {
	w.ticks = append(w.ticks, now)
}

// restoreLast removes the most recently recorded tick.
func (w *tickWindow) restoreLast() {
	if len(w.ticks) <= w.start {
		return
	}
	w.ticks[len(w.ticks)-1] = time.Time{}
	w.ticks = w.ticks[:len(w.ticks)-1]
}

// active returns the number of ticks inside the window ending at now. A tick
// recorded exactly one interval ago has expired.
func (w *tickWindow) active(now time.Time) int {
	w.compact(now)
	return len(w.ticks) - w.start
}

// compact advances start past expired ticks and truncates the slice once the
// expired prefix is large enough.
func (w *tickWindow) compact(now time.Time) {
	for w.start < len(w.ticks) && w.expired(w.ticks[w.start], now) {
		w.start++
	}

	if w.start > compactThreshold && w.start > len(w.ticks)/2 {
		n := copy(w.ticks, w.ticks[w.start:])
		clear(w.ticks[n:])
		w.ticks = w.ticks[:n]
		w.start = 0
	}
}

// nextExpiry returns when the oldest unexpired tick leaves the window.
func (w *tickWindow) nextExpiry(now time.Time) (time.Time, bool) {
	w.compact(now)
	if w.start >= len(w.ticks) {
		return time.Time{}, false
	}
	return w.ticks[w.start].Add(w.interval), true
}

func (w *tickWindow) expired(tick, now time.Time) bool {
	return now.Sub(tick) >= w.interval
}
