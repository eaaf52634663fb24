package gpu

import "errors"

// ErrDeviceLost reports that the device stopped responding. Every
// operation on a lost device fails with this error and the renderer is
// expected to tear down.
var ErrDeviceLost = errors.New("gpu: device lost")

// OutOfMemoryError reports an allocation failure in either device or
// host memory.
type OutOfMemoryError struct {
	Device bool
}

func (e *OutOfMemoryError) Error() string {
	if e.Device {
		return "gpu: out of device memory"
	}
	return "gpu: out of host memory"
}

func IsOutOfMemory(err error) bool {
	var oom *OutOfMemoryError
	return errors.As(err, &oom)
}
