// USB DFU memory backend contract
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dfu

// MemoryInfo describes the fixed, compile-time properties of a Backend: the
// transfer chunk size it expects, the timing a host should poll at for each
// long-running operation, and whether the device stays responsive on the
// bus after manifestation (p14, DFU1.1, "manifestation tolerant").
type MemoryInfo struct {
	// InfoString identifies the backend in the DFU interface string
	// descriptor.
	InfoString string

	// InitialAddressPointer is the address_pointer value a session
	// starts with, before any Set Address Pointer request.
	InitialAddressPointer uint32

	// TransferSize is the fixed wTransferSize used for address
	// arithmetic on download blocks (p7, §4.3); it is also advertised
	// in the DFU functional descriptor.
	TransferSize uint16

	// ProgramTimeMS, EraseTimeMS, FullEraseTimeMS and ManifestationTimeMS
	// are the bwPollTimeout values a session reports while the
	// corresponding backend call is outstanding.
	ProgramTimeMS       uint32
	EraseTimeMS         uint32
	FullEraseTimeMS     uint32
	ManifestationTimeMS uint32

	// DetachTimeoutMS is advertised in the DFU functional descriptor;
	// detach/runtime switchover itself is out of scope for this
	// package.
	DetachTimeoutMS uint16

	// ManifestationTolerant mirrors bmAttributes bit 2 of the DFU
	// functional descriptor.
	ManifestationTolerant bool
}

// Backend is the capability contract a non-volatile memory driver must
// satisfy to back a Session. It is bound once, at Session construction;
// there is no dynamic dispatch or registration beyond that.
//
// Implementations must not retain any slice passed to Program, or the dst
// slice passed to Read, past the call returning: the Session reuses a
// single fixed buffer for both
// directions, per the single-threaded, non-reentrant model this package
// assumes (callers must not call back into the Session from within a
// Backend method).
type Backend interface {
	// Info returns the backend's fixed properties.
	Info() MemoryInfo

	// Read copies up to len(dst) bytes starting at address into dst and
	// returns the number of bytes copied. Returning fewer bytes than
	// requested signals the end of the upload (p9, §3.1, "short
	// frame"). A non-OK status is latched and moves the session to
	// dfuERROR at the next GETSTATUS.
	Read(address uint32, dst []byte) (n int, status Status, err error)

	// Erase erases the sector containing address.
	Erase(address uint32) (status Status, err error)

	// EraseAll erases the entire mapped region.
	EraseAll() (status Status, err error)

	// Program writes data starting at address. data is only valid for
	// the duration of the call.
	Program(address uint32, data []byte) (status Status, err error)

	// Manifest finalizes a download. On success it may not return at
	// all, when the device resets or jumps to the new firmware. A
	// returned StatusOK is treated as success and any other status as
	// failure; ManifestationTolerant in Info selects the state the
	// session moves to afterwards.
	Manifest() (status Status, err error)
}

// WriteBufferStorer is an optional capability a Backend may additionally
// implement to receive download data directly into backend-owned storage,
// avoiding a copy through the Session's io buffer. Sessions fall back to
// their own buffer when a Backend does not implement it.
type WriteBufferStorer interface {
	StoreWriteBuffer(src []byte) error
}

// BusResetter is an optional capability a Backend may implement to be
// notified of a USB bus reset while the session is in
// dfuMANIFEST-WAIT-RESET, e.g. to reboot into the new firmware. See
// Session.BusReset.
type BusResetter interface {
	USBReset()
}
