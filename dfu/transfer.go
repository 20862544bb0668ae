// USB DFU transfer engine: download block buffering and upload streaming
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dfu

// dnload handles every DNLOAD-shaped Command: data blocks and the four
// vendor subcommands, plus the zero-length commit that ends a download
// (p9, §4.2-4.3).
func (s *Session) dnload(cmd Command) (Reply, error) {
	switch s.state {
	case StateIdle, StateDnloadIdle:
		// accepted below
	default:
		return s.illegal("DNLOAD not permitted in this state")
	}

	switch cmd.Kind {
	case CmdDnloadBlock:
		return s.dnloadBlock(cmd)
	case CmdDnloadCommit:
		return s.dnloadCommit()
	case CmdGetCommands:
		s.pending = pendingOp{kind: pendingGetCommands}
		s.state = StateDnloadSync
		return Reply{}, nil
	case CmdSetAddressPointer:
		s.pending = pendingOp{kind: pendingSetAddress, address: cmd.Address}
		s.state = StateDnloadSync
		return Reply{}, nil
	case CmdEraseAll:
		s.pending = pendingOp{kind: pendingEraseAll}
		s.state = StateDnloadSync
		return Reply{}, nil
	case CmdEraseSector:
		s.pending = pendingOp{kind: pendingEraseSector, address: cmd.Address}
		s.state = StateDnloadSync
		return Reply{}, nil
	case CmdReadUnprotect:
		// Optional per §9; not implemented by any backend this
		// package ships, so it is reported as an unknown command
		// without a protocol violation.
		return s.unknownSubcommand()
	default:
		return s.unknownSubcommand()
	}
}

func (s *Session) unknownSubcommand() (Reply, error) {
	s.logf("unrecognized DNLOAD subcommand")
	s.state = StateError
	s.status = StatusErrUnknown
	return Reply{Stall: true}, nil
}

func (s *Session) dnloadBlock(cmd Command) (Reply, error) {
	if len(cmd.Data) > int(s.info.TransferSize) {
		return s.illegal("download block exceeds TRANSFER_SIZE")
	}

	if s.blockNumSeen && cmd.BlockNum != s.blockNumExpected {
		return s.illegal("out-of-sequence block number")
	}

	// Download of block n>=2 writes at address_pointer+(n-2)*TRANSFER_SIZE.
	// TRANSFER_SIZE, not the (possibly short) wLength, is the multiplier:
	// using wLength here was a historical bug (see the module-level
	// design notes) that corrupts the layout of any block after a short
	// one.
	offset := uint32(cmd.BlockNum-2) * uint32(s.info.TransferSize)
	addr := s.addressPointer + offset

	var n int
	if wbs, ok := s.backend.(WriteBufferStorer); ok {
		// Backend takes the block directly, avoiding a copy through
		// the session's own io buffer.
		if err := wbs.StoreWriteBuffer(cmd.Data); err != nil {
			s.logf("backend store-write-buffer error: %v", err)
		}
		n = len(cmd.Data)
	} else {
		n = copy(s.ioBuf, cmd.Data)
	}

	s.pending = pendingOp{kind: pendingProgram, address: addr, length: uint16(n)}
	s.blockNumExpected = cmd.BlockNum + 1
	s.blockNumSeen = true
	s.state = StateDnloadSync

	return Reply{}, nil
}

// dnloadCommit implements the zero-length DNLOAD that signals the host is
// done sending blocks, moving the session toward manifestation.
func (s *Session) dnloadCommit() (Reply, error) {
	if s.state != StateDnloadIdle {
		return s.illegal("DNLOAD commit without a prior download")
	}

	s.pending = pendingOp{kind: pendingManifest}
	s.state = StateManifestSync

	return Reply{}, nil
}

// upload implements the UPLOAD request. Block 0 returns the Get Commands
// response (the subcommand list); blocks n>=2 read backend data at
// address_pointer+(n-2)*TRANSFER_SIZE, mirroring the download addressing
// formula in dnloadBlock so that a download followed by an upload of the
// same block is an identity read absent an intervening erase (§8).
func (s *Session) upload(cmd Command) (Reply, error) {
	switch s.state {
	case StateIdle, StateUploadIdle:
		// accepted below
	default:
		return s.illegal("UPLOAD not permitted in this state")
	}

	if cmd.BlockNum == 0 {
		data := s.uploadOverride
		if data == nil {
			data = getCommandsReply
		}
		data = trimTo(data, cmd.Length)
		s.uploadOverride = nil
		s.state = StateIdle
		return Reply{Data: data}, nil
	}

	var addr uint32
	if cmd.BlockNum >= 2 {
		addr = s.addressPointer + uint32(cmd.BlockNum-2)*uint32(s.info.TransferSize)
	} else {
		addr = s.addressPointer
	}

	n := int(cmd.Length)
	if n > int(s.info.TransferSize) {
		n = int(s.info.TransferSize)
	}

	dst := s.ioBuf[:n]
	read, status, err := s.backend.Read(addr, dst)
	if err != nil {
		s.logf("backend read error: %v", err)
	}

	if status != StatusOK {
		// Latched: the failure surfaces as dfuERROR on the next
		// GETSTATUS, not immediately, since UPLOAD has no status
		// byte of its own to report it through (§7).
		st := status
		s.deferredError = &st
		s.state = StateUploadIdle
		return Reply{Data: dst[:0]}, err
	}

	if read < n {
		// Short read: end of upload (p9, §4.1).
		s.state = StateIdle
	} else {
		s.state = StateUploadIdle
	}

	return Reply{Data: dst[:read]}, nil
}

func trimTo(buf []byte, length uint16) []byte {
	if int(length) < len(buf) {
		return buf[:length]
	}
	return buf
}
