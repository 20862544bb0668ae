// In-memory DFU memory backend for testing and demonstration
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package memsim provides a RAM-backed dfu.Backend. It stands in for a real
// flash driver in tests and in the example gadget wiring: sector erase
// fills with 0xff like NOR flash, program requires the target region to be
// erased first, and a configurable fault can be injected to exercise the
// error-recovery path a real backend would trigger on hardware failure.
package memsim

import (
	"fmt"

	"github.com/usbarmory/dfu/dfu"
)

// SectorSize is the erase granularity simulated by Flash.
const SectorSize = 4096

// Flash is an in-memory, NOR-flash-shaped dfu.Backend.
type Flash struct {
	info dfu.MemoryInfo
	mem  []byte
	base uint32

	// writeBuf holds the most recent block handed to StoreWriteBuffer,
	// consumed by the next Program call in place of its data argument.
	writeBuf []byte

	// Fault, when non-zero, is returned by the next Backend operation
	// before it does anything else, then cleared.
	Fault dfu.Status

	// Manifested records whether Manifest has been called successfully,
	// for tests to assert on.
	Manifested bool
}

// New constructs a Flash of the given size (bytes), mapped starting at
// base, using the given DFU transfer size.
func New(base uint32, size int, transferSize uint16) *Flash {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xff
	}

	return &Flash{
		base: base,
		mem:  mem,
		info: dfu.MemoryInfo{
			InfoString:            "@Flash/memsim",
			InitialAddressPointer: base,
			TransferSize:          transferSize,
			ProgramTimeMS:         2,
			EraseTimeMS:           20,
			FullEraseTimeMS:       200,
			ManifestationTimeMS:   5,
			DetachTimeoutMS:       255,
			ManifestationTolerant: true,
		},
	}
}

// Info implements dfu.Backend.
func (f *Flash) Info() dfu.MemoryInfo {
	return f.info
}

func (f *Flash) takeFault() dfu.Status {
	fault := f.Fault
	f.Fault = dfu.StatusOK
	return fault
}

func (f *Flash) offset(address uint32) (int, error) {
	if address < f.base || int(address-f.base) > len(f.mem) {
		return 0, fmt.Errorf("memsim: address %#x out of range", address)
	}
	return int(address - f.base), nil
}

// Read implements dfu.Backend.
func (f *Flash) Read(address uint32, dst []byte) (int, dfu.Status, error) {
	if fault := f.takeFault(); fault != dfu.StatusOK {
		return 0, fault, nil
	}

	off, err := f.offset(address)
	if err != nil {
		return 0, dfu.StatusErrAddress, err
	}

	n := copy(dst, f.mem[off:])
	return n, dfu.StatusOK, nil
}

// Erase implements dfu.Backend, erasing the SectorSize-aligned sector
// containing address.
func (f *Flash) Erase(address uint32) (dfu.Status, error) {
	if fault := f.takeFault(); fault != dfu.StatusOK {
		return fault, nil
	}

	off, err := f.offset(address)
	if err != nil {
		return dfu.StatusErrAddress, err
	}

	start := (off / SectorSize) * SectorSize
	end := start + SectorSize
	if end > len(f.mem) {
		end = len(f.mem)
	}

	for i := start; i < end; i++ {
		f.mem[i] = 0xff
	}

	return dfu.StatusOK, nil
}

// EraseAll implements dfu.Backend.
func (f *Flash) EraseAll() (dfu.Status, error) {
	if fault := f.takeFault(); fault != dfu.StatusOK {
		return fault, nil
	}

	for i := range f.mem {
		f.mem[i] = 0xff
	}

	return dfu.StatusOK, nil
}

// StoreWriteBuffer implements dfu.WriteBufferStorer, letting a Session hand
// download data to Flash directly instead of copying it through its own io
// buffer. The stored block is consumed by the next Program call.
func (f *Flash) StoreWriteBuffer(src []byte) error {
	f.writeBuf = append(f.writeBuf[:0], src...)
	return nil
}

// Program implements dfu.Backend. Writing to a byte that is not 0xff fails
// with errPROG, mirroring NOR flash's write-once-per-erase-cycle behavior.
// data may be nil, in which case the block most recently passed to
// StoreWriteBuffer is used instead.
func (f *Flash) Program(address uint32, data []byte) (dfu.Status, error) {
	if fault := f.takeFault(); fault != dfu.StatusOK {
		return fault, nil
	}

	if data == nil {
		data = f.writeBuf
	}

	off, err := f.offset(address)
	if err != nil {
		return dfu.StatusErrAddress, err
	}

	if off+len(data) > len(f.mem) {
		return dfu.StatusErrAddress, fmt.Errorf("memsim: program past end of mapped region")
	}

	for i, b := range data {
		if f.mem[off+i] != 0xff {
			return dfu.StatusErrProg, fmt.Errorf("memsim: byte at %#x not erased", address+uint32(i))
		}
		f.mem[off+i] = b
	}

	return dfu.StatusOK, nil
}

// Manifest implements dfu.Backend. Unlike real hardware this does not
// reset or jump: it just records that manifestation ran, for tests.
func (f *Flash) Manifest() (dfu.Status, error) {
	if fault := f.takeFault(); fault != dfu.StatusOK {
		return fault, nil
	}

	f.Manifested = true
	return dfu.StatusOK, nil
}

// USBReset implements dfu.BusResetter.
func (f *Flash) USBReset() {}

// Bytes returns a copy of the simulated flash contents, for test assertions.
func (f *Flash) Bytes() []byte {
	out := make([]byte, len(f.mem))
	copy(out, f.mem)
	return out
}
