// USB DFU control request decoding
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dfu

import "encoding/binary"

// DFU class-specific request codes (p6, Table 3-1, DFU1.1). DecodeRequest
// has no case for Detach: like any other unrecognized request code it
// decodes to CmdUnknownSubcommand, since DFU Runtime mode and the
// app<->DFU switchover it drives are out of scope for this package.
const (
	ReqDetach    = 0
	ReqDnload    = 1
	ReqUpload    = 2
	ReqGetStatus = 3
	ReqClrStatus = 4
	ReqGetState  = 5
	ReqAbort     = 6
)

// DNLOAD wValue==0 subcommand bytes (p11-13, §6, DFU1.1 extensions as
// commonly implemented by ST/vendor-specific bootloaders).
const (
	subGetCommands       = 0x00
	subSetAddressPointer = 0x21
	subErase             = 0x41
	subReadUnprotect     = 0x92
)

// CommandKind tags the decoded shape of a DFU request.
type CommandKind int

const (
	CmdGetStatus CommandKind = iota
	CmdClrStatus
	CmdGetState
	CmdAbort
	CmdDnloadCommit // wValue<2, wLength==0 (commit a pending download)
	CmdGetCommands
	CmdSetAddressPointer
	CmdEraseAll
	CmdEraseSector
	CmdReadUnprotect
	CmdUnknownSubcommand
	CmdDnloadBlock // wValue>=2
	CmdUpload
)

// Command is a decoded DFU control request, ready for Session.Handle.
type Command struct {
	Kind     CommandKind
	BlockNum uint16 // wValue, for CmdDnloadBlock and CmdUpload
	Address  uint32 // for CmdSetAddressPointer, CmdEraseSector
	Data     []byte // OUT payload, for CmdDnloadBlock
	Length   uint16 // wLength, for CmdUpload
}

// DecodeRequest turns a class request code, wValue and an OUT payload (nil
// for IN requests) into a Command. Requests outside the DFU request code
// range are not this package's concern - the caller is expected to have
// already determined the request is addressed to the DFU interface.
func DecodeRequest(request uint8, value uint16, length uint16, payload []byte) Command {
	switch request {
	case ReqGetStatus:
		return Command{Kind: CmdGetStatus}
	case ReqClrStatus:
		return Command{Kind: CmdClrStatus}
	case ReqGetState:
		return Command{Kind: CmdGetState}
	case ReqAbort:
		return Command{Kind: CmdAbort}
	case ReqUpload:
		return Command{Kind: CmdUpload, BlockNum: value, Length: length}
	case ReqDnload:
		return decodeDnload(value, payload)
	default:
		return Command{Kind: CmdUnknownSubcommand}
	}
}

func decodeDnload(value uint16, payload []byte) Command {
	if value >= 2 {
		return Command{Kind: CmdDnloadBlock, BlockNum: value, Data: payload}
	}

	// wValue == 0 or 1: either a commit (empty payload) or a vendor
	// subcommand (p11, §6, DFU1.1 extension).
	if len(payload) == 0 {
		return Command{Kind: CmdDnloadCommit}
	}

	switch payload[0] {
	case subGetCommands:
		return Command{Kind: CmdGetCommands}
	case subSetAddressPointer:
		if len(payload) != 5 {
			return Command{Kind: CmdUnknownSubcommand}
		}
		return Command{Kind: CmdSetAddressPointer, Address: binary.LittleEndian.Uint32(payload[1:5])}
	case subErase:
		switch len(payload) {
		case 1:
			return Command{Kind: CmdEraseAll}
		case 5:
			return Command{Kind: CmdEraseSector, Address: binary.LittleEndian.Uint32(payload[1:5])}
		default:
			return Command{Kind: CmdUnknownSubcommand}
		}
	case subReadUnprotect:
		return Command{Kind: CmdReadUnprotect}
	default:
		return Command{Kind: CmdUnknownSubcommand}
	}
}

// getCommandsReply is the fixed response to a Get Commands subcommand,
// listing the vendor subcommands this decoder recognizes.
var getCommandsReply = []byte{subGetCommands, subSetAddressPointer, subErase, subReadUnprotect}
