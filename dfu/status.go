// USB DFU status / poll-timeout engine
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dfu

// GetStatusLength is the fixed size of a GETSTATUS reply (p10, §6.1.2,
// DFU1.1).
const GetStatusLength = 6

// getStatus implements GETSTATUS. Per the design choice recorded in the
// module's design notes, a pending operation latched by a prior DNLOAD is
// executed here, inline, rather than at the moment the DNLOAD request was
// received: the first poll that finds a pending operation runs it and
// reports dfuDNBUSY/dfuMANIFEST with the operation's poll timeout; the next
// poll finds the result already latched and reports completion with a zero
// timeout.
func (s *Session) getStatus() (Reply, error) {
	if s.deferredError != nil {
		s.status = *s.deferredError
		s.deferredError = nil
		s.state = StateError
		return Reply{Data: s.statusBytes(0)}, nil
	}

	switch s.state {
	case StateDnloadSync:
		return s.runPending()
	case StateDnBusy:
		return s.finishPending(StateDnloadIdle)
	case StateManifestSync:
		return s.runManifest()
	case StateManifest:
		return s.finishManifest()
	default:
		// GETSTATUS in dfuERROR never changes status until
		// CLRSTATUS (§8, invariant 5); every other state simply
		// reports itself.
		return Reply{Data: s.statusBytes(0)}, nil
	}
}

func (s *Session) runPending() (Reply, error) {
	op := s.pending

	switch op.kind {
	case pendingSetAddress:
		s.addressPointer = op.address
		s.pending = pendingOp{}
		s.state = StateDnloadIdle
		return Reply{Data: s.statusBytes(0)}, nil

	case pendingGetCommands:
		s.uploadOverride = getCommandsReply
		s.pending = pendingOp{}
		s.state = StateDnloadIdle
		return Reply{Data: s.statusBytes(0)}, nil

	case pendingEraseAll:
		status, err := s.backend.EraseAll()
		if err != nil {
			s.logf("backend erase-all error: %v", err)
		}
		return s.startTimed(status, s.info.FullEraseTimeMS), nil

	case pendingEraseSector:
		status, err := s.backend.Erase(op.address)
		if err != nil {
			s.logf("backend erase error: %v", err)
		}
		return s.startTimed(status, s.info.EraseTimeMS), nil

	case pendingProgram:
		var data []byte
		if _, ok := s.backend.(WriteBufferStorer); !ok {
			data = s.ioBuf[:op.length]
		}
		status, err := s.backend.Program(op.address, data)
		if err != nil {
			s.logf("backend program error: %v", err)
		}
		return s.startTimed(status, s.info.ProgramTimeMS), nil

	default:
		return Reply{Data: s.statusBytes(0)}, nil
	}
}

func (s *Session) startTimed(result Status, pollMS uint32) Reply {
	s.pendingResult = result
	s.state = StateDnBusy
	return Reply{Data: s.statusBytes(pollMS)}
}

func (s *Session) finishPending(nextOnSuccess State) (Reply, error) {
	result := s.pendingResult
	s.pending = pendingOp{}

	if result != StatusOK {
		s.status = result
		s.state = StateError
		return Reply{Data: s.statusBytes(0)}, nil
	}

	s.state = nextOnSuccess
	return Reply{Data: s.statusBytes(0)}, nil
}

func (s *Session) runManifest() (Reply, error) {
	status, err := s.backend.Manifest()
	if err != nil {
		s.logf("backend manifest error: %v", err)
	}

	s.pendingResult = status
	s.state = StateManifest
	return Reply{Data: s.statusBytes(s.info.ManifestationTimeMS)}, nil
}

func (s *Session) finishManifest() (Reply, error) {
	result := s.pendingResult
	s.pending = pendingOp{}

	if result == StatusOK {
		if s.info.ManifestationTolerant {
			s.resetToIdle()
		} else {
			s.state = StateManifestWaitReset
		}
		return Reply{Data: s.statusBytes(0)}, nil
	}

	s.status = result

	if s.info.ManifestationTolerant {
		s.state = StateError
	} else {
		s.state = StateManifestWaitReset
	}

	return Reply{Data: s.statusBytes(0)}, nil
}

// statusBytes builds the 6-byte GETSTATUS reply: bStatus, bwPollTimeout (3
// bytes LE), bState, iString.
func (s *Session) statusBytes(pollMS uint32) []byte {
	return []byte{
		uint8(s.status),
		uint8(pollMS),
		uint8(pollMS >> 8),
		uint8(pollMS >> 16),
		uint8(s.state),
		0,
	}
}
