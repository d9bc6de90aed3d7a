//go:build linux

package probe

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

type perfCounter struct {
	fd int
}

// OpenCounter opens a disabled PERF_COUNT_HW_CPU_CYCLES event for the
// calling thread, excluding kernel and hypervisor cycles. The caller must
// keep its goroutine locked to the same OS thread for as long as the
// counter is in use.
func OpenCounter() (Counter, error) {
	attr := unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_HARDWARE,
		Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Config: unix.PERF_COUNT_HW_CPU_CYCLES,
		Bits: unix.PerfBitDisabled |
			unix.PerfBitExcludeKernel |
			unix.PerfBitExcludeHv,
	}

	fd, err := unix.PerfEventOpen(&attr, 0, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: perf_event_open: %w",
			ErrCounterUnavailable, err)
	}

	return &perfCounter{fd: fd}, nil
}

func (c *perfCounter) Reset() error {
	return c.ioctl(unix.PERF_EVENT_IOC_RESET, "reset")
}

func (c *perfCounter) Start() error {
	return c.ioctl(unix.PERF_EVENT_IOC_ENABLE, "enable")
}

func (c *perfCounter) Stop() error {
	return c.ioctl(unix.PERF_EVENT_IOC_DISABLE, "disable")
}

func (c *perfCounter) Read() (uint64, error) {
	var buf [8]byte

	n, err := unix.Read(c.fd, buf[:])
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}

	if n != len(buf) {
		return 0, fmt.Errorf("read counter: short read of %d bytes", n)
	}

	return binary.NativeEndian.Uint64(buf[:]), nil
}

// Close releases the perf event. It is a no-op on a nil or closed counter.
func (c *perfCounter) Close() error {
	if c == nil || c.fd < 0 {
		return nil
	}

	err := unix.Close(c.fd)
	c.fd = -1

	return err
}

func (c *perfCounter) ioctl(req uint, op string) error {
	if err := unix.IoctlSetInt(c.fd, req, 0); err != nil {
		return fmt.Errorf("%s counter: %w", op, err)
	}

	return nil
}
