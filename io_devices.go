// io_devices.go - Serial port and monotonic timer MMIO devices

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/intuitionamiga/RV32Engine
License: GPLv3 or later
*/

package main

import (
	"bufio"
	"io"
	"time"
)

// MMIO map. Both regions live outside the physical window and raise the
// differential skip-ref flag on access, because the reference model cannot
// reproduce their side effects.
const (
	SERIAL_PORT = 0xA00003F8 // write-only byte port
	RTC_PORT_LO = 0xA0000048 // low half of the microsecond counter
	RTC_PORT_HI = 0xA000004C // high half of the microsecond counter
)

// SerialPort is a write-only byte sink. Each write emits the low byte of
// the value and flushes, so guest output interleaves correctly with the
// debugger's own console output.
type SerialPort struct {
	w        *bufio.Writer
	onAccess func()
}

// NewSerialPort creates a serial sink writing to w. onAccess is invoked on
// every write (the differential driver's skip-ref hook); it may be nil.
func NewSerialPort(w io.Writer, onAccess func()) *SerialPort {
	return &SerialPort{
		w:        bufio.NewWriter(w),
		onAccess: onAccess,
	}
}

// HandleWrite emits the low byte of value and flushes.
func (sp *SerialPort) HandleWrite(addr uint32, value uint32) {
	sp.w.WriteByte(byte(value))
	sp.w.Flush()
	if sp.onAccess != nil {
		sp.onAccess()
	}
}

// RTCDevice is a 64-bit monotonic microsecond counter exposed as two
// 32-bit read-only registers. The counter starts at zero on its first
// read; writes are ignored by the bus (no write handler is mapped).
type RTCDevice struct {
	epoch    time.Time
	started  bool
	onAccess func()

	// now is swappable for tests; defaults to time.Now.
	now func() time.Time
}

// NewRTCDevice creates the timer device. onAccess is invoked on every
// register read (the differential skip-ref hook); it may be nil.
func NewRTCDevice(onAccess func()) *RTCDevice {
	return &RTCDevice{
		onAccess: onAccess,
		now:      time.Now,
	}
}

func (rtc *RTCDevice) uptimeMicros() uint64 {
	cur := rtc.now()
	if !rtc.started {
		rtc.epoch = cur
		rtc.started = true
	}
	return uint64(cur.Sub(rtc.epoch) / time.Microsecond)
}

// HandleRead returns the requested half of the microsecond counter.
func (rtc *RTCDevice) HandleRead(addr uint32) uint32 {
	if rtc.onAccess != nil {
		rtc.onAccess()
	}
	us := rtc.uptimeMicros()
	switch addr {
	case RTC_PORT_LO:
		return uint32(us)
	case RTC_PORT_HI:
		return uint32(us >> 32)
	}
	return 0
}
