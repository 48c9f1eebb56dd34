package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/cpuext/internal/tensor"
)

// ErrInvalidArgument is returned (wrapped) by every kernel whose inputs fail
// validation. Validation always happens before any output is written.
var ErrInvalidArgument = errors.New("invalid argument")

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// checkLayout rejects layouts other than Planar and ChannelsLast, and
// channels-last tensors whose rank is not 4.
func checkLayout(op string, t *tensor.RawTensor) error {
	switch t.Layout() {
	case tensor.Planar:
		return nil
	case tensor.ChannelsLast:
		if len(t.Shape()) != 4 {
			return invalidf("%s with channels last format supports tensors with 4 dims", op)
		}
		return nil
	default:
		return invalidf("%s: unsupported memory format %s, supports only channels_last and planar", op, t.Layout())
	}
}
