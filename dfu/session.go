// USB DFU 1.1a session state machine
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dfu

import (
	"fmt"
	"log"
	"sync"
)

// pendingKind tags the operation latched while the session is in a sync
// state, awaiting the GETSTATUS poll that executes it (p9, §4.5).
type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingSetAddress
	pendingGetCommands
	pendingEraseSector
	pendingEraseAll
	pendingProgram
	pendingManifest
)

type pendingOp struct {
	kind    pendingKind
	address uint32
	length  uint16
}

// Reply is the IN-stage payload, if any, a Session hands back to the class
// adapter for a completed request; Stall signals the adapter to stall EP0
// instead (p7, Table A.1, "illegal request").
type Reply struct {
	Data  []byte
	Stall bool
}

// Session is the single owned object that tracks DFU protocol state for one
// interface. There is no global state: an integrator constructs exactly one
// Session per DFU interface and feeds it decoded Commands.
type Session struct {
	mu sync.Mutex

	backend Backend
	info    MemoryInfo
	iface   uint8
	log     *log.Logger

	state  State
	status Status

	addressPointer   uint32
	blockNumExpected uint16
	blockNumSeen     bool

	ioBuf          []byte
	pending        pendingOp
	pendingResult  Status
	deferredError  *Status
	uploadOverride []byte
}

// NewSession constructs a Session bound to backend for DFU interface number
// iface. The returned Session starts in dfuIDLE.
func NewSession(backend Backend, iface uint8) *Session {
	info := backend.Info()

	return &Session{
		backend:        backend,
		info:           info,
		iface:          iface,
		log:            log.Default(),
		state:          StateIdle,
		status:         StatusOK,
		addressPointer: info.InitialAddressPointer,
		ioBuf:          make([]byte, info.TransferSize),
	}
}

// SetLogger overrides the logger used for protocol diagnostics.
func (s *Session) SetLogger(l *log.Logger) {
	s.log = l
}

// Interface returns the DFU interface number this session was bound to.
func (s *Session) Interface() uint8 {
	return s.iface
}

// State returns the session's current DFU state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) logf(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Printf("dfu: "+format, args...)
	}
}

// illegal moves the session to dfuERROR with errSTALLEDPKT and returns a
// stalling Reply, per the protocol-error policy (p7, Table A.1; §7).
func (s *Session) illegal(reason string) (Reply, error) {
	prev := s.state
	s.logf("illegal request in state %s: %s", prev, reason)
	s.state = StateError
	s.status = StatusErrStalledPkt
	s.pending = pendingOp{}
	return Reply{Stall: true}, fmt.Errorf("dfu: illegal request in state %s: %s", prev, reason)
}

// Handle dispatches one decoded Command against the session's current
// state. It is the sole entry point a USB class adapter calls for DFU class
// requests.
func (s *Session) Handle(cmd Command) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Kind {
	case CmdGetStatus:
		return s.getStatus()
	case CmdClrStatus:
		return s.clrStatus()
	case CmdGetState:
		return Reply{Data: []byte{uint8(s.state)}}, nil
	case CmdAbort:
		return s.abort()
	case CmdUpload:
		return s.upload(cmd)
	default:
		return s.dnload(cmd)
	}
}

// abort implements the ABORT request: return to dfuIDLE from any state
// except dfuERROR, dfuDNBUSY and dfuMANIFEST, which the protocol defines as
// illegal-to-abort (p7, Table A.1).
func (s *Session) abort() (Reply, error) {
	switch s.state {
	case StateError, StateDnBusy, StateManifest:
		return s.illegal("ABORT not permitted in this state")
	default:
		s.logf("abort from %s", s.state)
		s.resetToIdle()
		return Reply{}, nil
	}
}

// clrStatus implements CLRSTATUS, the sole recovery path out of dfuERROR
// (§7).
func (s *Session) clrStatus() (Reply, error) {
	if s.state != StateError {
		// Lenient no-op outside dfuERROR rather than a stall; see the
		// design notes' CLRSTATUS entry for why.
		return Reply{}, nil
	}

	s.logf("clearing error status %s", s.status)
	s.status = StatusOK
	s.deferredError = nil
	s.state = StateIdle
	s.blockNumExpected = 0
	s.blockNumSeen = false
	s.pending = pendingOp{}

	return Reply{}, nil
}

func (s *Session) resetToIdle() {
	s.state = StateIdle
	s.blockNumExpected = 0
	s.blockNumSeen = false
	s.pending = pendingOp{}
	s.uploadOverride = nil
}

// BusReset implements the USB bus reset behavior of §4.5: in
// dfuMANIFEST-WAIT-RESET the device is expected to actually reboot, so the
// session is left untouched (beyond notifying the backend); in any other
// state, buffers are discarded and the session returns to dfuIDLE.
func (s *Session) BusReset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateManifestWaitReset {
		s.logf("bus reset in %s, awaiting device reboot", s.state)
		if br, ok := s.backend.(BusResetter); ok {
			br.USBReset()
		}
		return
	}

	s.logf("bus reset in %s, discarding session state", s.state)
	s.status = StatusOK
	s.deferredError = nil
	s.addressPointer = s.info.InitialAddressPointer
	s.resetToIdle()
}
