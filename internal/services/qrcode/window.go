package qrcode

import "time"

const (
	DefaultRotation  = 300 * time.Second
	DefaultTolerance = 1
)

// Window buckets wall-clock time into rotation epochs. A claimed epoch is
// fresh while it lies within Tolerance epochs of the verifier's own epoch.
type Window struct {
	Rotation  time.Duration
	Tolerance int64
}

func NewWindow(rotation time.Duration, tolerance int) Window {
	if rotation < time.Millisecond {
		rotation = DefaultRotation
	}
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	return Window{Rotation: rotation, Tolerance: int64(tolerance)}
}

// EpochOf is floor(unixMillis / rotationMillis).
func (w Window) EpochOf(t time.Time) int64 {
	return floorDiv(t.UnixMilli(), w.Rotation.Milliseconds())
}

func (w Window) IsFresh(claimed, now int64) bool {
	return claimed >= now-w.Tolerance && claimed <= now+w.Tolerance
}

// ExpiresIn is the time left in the epoch containing t.
func (w Window) ExpiresIn(t time.Time) time.Duration {
	next := (w.EpochOf(t) + 1) * w.Rotation.Milliseconds()
	return time.Duration(next-t.UnixMilli()) * time.Millisecond
}

// RotationSeconds is what clients are told to use as their refresh cadence.
func (w Window) RotationSeconds() int {
	return int(w.Rotation / time.Second)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
