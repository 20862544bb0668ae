// USB DFU 1.1a device-side protocol state
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dfu implements the device-side state machine of the USB Device
// Firmware Upgrade class, revision 1.1a, for embedding in a larger USB
// device stack. It speaks the DFU control transfer protocol and drives a
// caller-supplied Backend; it does not enumerate, does not drive endpoint
// hardware, and does not implement any concrete flash driver.
package dfu

// State is a DFU device state (p7, Table A.1, DFU1.1).
type State uint8

const (
	StateAppIdle State = iota
	StateAppDetach
	StateIdle
	StateDnloadSync
	StateDnBusy
	StateDnloadIdle
	StateManifestSync
	StateManifest
	StateManifestWaitReset
	StateUploadIdle
	StateError
)

func (s State) String() string {
	switch s {
	case StateAppIdle:
		return "appIDLE"
	case StateAppDetach:
		return "appDETACH"
	case StateIdle:
		return "dfuIDLE"
	case StateDnloadSync:
		return "dfuDNLOAD-SYNC"
	case StateDnBusy:
		return "dfuDNBUSY"
	case StateDnloadIdle:
		return "dfuDNLOAD-IDLE"
	case StateManifestSync:
		return "dfuMANIFEST-SYNC"
	case StateManifest:
		return "dfuMANIFEST"
	case StateManifestWaitReset:
		return "dfuMANIFEST-WAIT-RESET"
	case StateUploadIdle:
		return "dfuUPLOAD-IDLE"
	case StateError:
		return "dfuERROR"
	default:
		return "unknown"
	}
}

// Status is a DFU status code (p8, Table A.2, DFU1.1), encoded as bStatus
// in the GETSTATUS reply.
type Status uint8

const (
	StatusOK Status = iota
	StatusErrTarget
	StatusErrFile
	StatusErrWrite
	StatusErrErase
	StatusErrCheckErased
	StatusErrProg
	StatusErrVerify
	StatusErrAddress
	StatusErrNotDone
	StatusErrFirmware
	StatusErrVendor
	StatusErrUsbR
	StatusErrPoR
	StatusErrUnknown
	StatusErrStalledPkt
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusErrTarget:
		return "errTARGET"
	case StatusErrFile:
		return "errFILE"
	case StatusErrWrite:
		return "errWRITE"
	case StatusErrErase:
		return "errERASE"
	case StatusErrCheckErased:
		return "errCHECK_ERASED"
	case StatusErrProg:
		return "errPROG"
	case StatusErrVerify:
		return "errVERIFY"
	case StatusErrAddress:
		return "errADDRESS"
	case StatusErrNotDone:
		return "errNOTDONE"
	case StatusErrFirmware:
		return "errFIRMWARE"
	case StatusErrVendor:
		return "errVENDOR"
	case StatusErrUsbR:
		return "errUSBR"
	case StatusErrPoR:
		return "errPOR"
	case StatusErrUnknown:
		return "errUNKNOWN"
	case StatusErrStalledPkt:
		return "errSTALLEDPKT"
	default:
		return "unknown"
	}
}
