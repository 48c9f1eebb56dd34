package tensor

import "fmt"

// Layout describes how the logical [N, C, H, W] axes are ordered in memory.
type Layout int

// Supported memory layouts.
const (
	// Planar stores dimensions in logical order; channels precede the spatial axes.
	Planar Layout = iota
	// ChannelsLast stores a rank-4 tensor as N, H, W, C.
	ChannelsLast
)

// String returns a human-readable layout name.
func (l Layout) String() string {
	switch l {
	case Planar:
		return "planar"
	case ChannelsLast:
		return "channels_last"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Check validates that shape can be stored with this layout.
func (l Layout) Check(shape Shape) error {
	switch l {
	case Planar:
		return nil
	case ChannelsLast:
		if len(shape) != 4 {
			return fmt.Errorf("channels last layout supports tensors with 4 dims, got %dD", len(shape))
		}
		return nil
	default:
		return fmt.Errorf("unsupported layout %s, supports only channels_last and planar", l)
	}
}

// Strides returns memory strides indexed by logical axis.
func (l Layout) Strides(shape Shape) []int {
	if l == ChannelsLast {
		return shape.ChannelsLastStrides()
	}
	return shape.ComputeStrides()
}
