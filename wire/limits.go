package wire

import (
	invoker "github.com/machinefabric/invoker-go"
)

// Default maximum encoded frame size (4 MB), the gRPC default receive limit
const DefaultMaxFrame int = 4 << 20

// Hard limit on frame size (16 MB) - prevents DoS
const MaxFrameHardLimit int = 16 << 20

// Limits represents protocol size limits
type Limits struct {
	MaxFrame int `yaml:"max_frame"`
}

// DefaultLimits returns the default protocol limits
func DefaultLimits() Limits {
	return Limits{MaxFrame: DefaultMaxFrame}
}

// Effective clamps configured limits to the hard limit and fills defaults
func (l Limits) Effective() Limits {
	if l.MaxFrame <= 0 {
		l.MaxFrame = DefaultMaxFrame
	}
	if l.MaxFrame > MaxFrameHardLimit {
		l.MaxFrame = MaxFrameHardLimit
	}
	return l
}

// Check fails with a malformed-frame error when an encoded frame of size n
// exceeds the limits
func (l Limits) Check(n int) error {
	l = l.Effective()
	if n > l.MaxFrame {
		return invoker.MalformedFrame("frame size %d exceeds max_frame limit %d", n, l.MaxFrame)
	}
	return nil
}
