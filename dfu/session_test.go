// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dfu_test

import (
	"bytes"
	"testing"

	"github.com/usbarmory/dfu/dfu"
	"github.com/usbarmory/dfu/example/memsim"
)

const (
	testBase         = 0x08000000
	testTransferSize = 1024
)

func newSession(t *testing.T) (*dfu.Session, *memsim.Flash) {
	t.Helper()
	flash := memsim.New(testBase, 64*1024, testTransferSize)
	return dfu.NewSession(flash, 0), flash
}

func expectState(t *testing.T, s *dfu.Session, want dfu.State) {
	t.Helper()
	if got := s.State(); got != want {
		t.Fatalf("state = %s, want %s", got, want)
	}
}

func downloadCmd(block uint16, data []byte) dfu.Command {
	return dfu.Command{Kind: dfu.CmdDnloadBlock, BlockNum: block, Data: data}
}

func setAddressCmd(addr uint32) dfu.Command {
	payload := make([]byte, 5)
	payload[0] = 0x21
	payload[1] = byte(addr)
	payload[2] = byte(addr >> 8)
	payload[3] = byte(addr >> 16)
	payload[4] = byte(addr >> 24)
	return dfu.DecodeRequest(dfu.ReqDnload, 0, uint16(len(payload)), payload)
}

func getStatus(t *testing.T, s *dfu.Session) dfu.Reply {
	t.Helper()
	reply, err := s.Handle(dfu.Command{Kind: dfu.CmdGetStatus})
	if err != nil {
		t.Fatalf("GETSTATUS: %v", err)
	}
	return reply
}

// driveDownload runs one block through the full DNLOAD -> (two GETSTATUS
// polls) dance and asserts it completes in dfuDNLOAD-IDLE.
func driveDownload(t *testing.T, s *dfu.Session, block uint16, data []byte) {
	t.Helper()

	if _, err := s.Handle(downloadCmd(block, data)); err != nil {
		t.Fatalf("DNLOAD block %d: %v", block, err)
	}
	expectState(t, s, dfu.StateDnloadSync)

	st := getStatus(t, s)
	if len(st.Data) != dfu.GetStatusLength {
		t.Fatalf("GETSTATUS reply length = %d, want %d", len(st.Data), dfu.GetStatusLength)
	}
	expectState(t, s, dfu.StateDnBusy)

	getStatus(t, s)
	expectState(t, s, dfu.StateDnloadIdle)
}

func TestSetAddressAndProgramOneBlock(t *testing.T) {
	s, flash := newSession(t)

	if _, err := s.Handle(setAddressCmd(testBase)); err != nil {
		t.Fatal(err)
	}
	getStatus(t, s)
	expectState(t, s, dfu.StateDnloadIdle)

	data := bytes.Repeat([]byte{0xaa}, testTransferSize)
	driveDownload(t, s, 2, data)

	got := flash.Bytes()[:testTransferSize]
	if !bytes.Equal(got, data) {
		t.Fatalf("programmed data mismatch")
	}
}

// TestShortFinalBlockAddressing is the invariant that block n writes at
// address_pointer+(n-2)*TRANSFER_SIZE using TRANSFER_SIZE as the
// multiplier, not the (possibly short) block length: a short final block
// must still land at the TRANSFER_SIZE-aligned offset.
func TestShortFinalBlockAddressing(t *testing.T) {
	s, flash := newSession(t)

	if _, err := s.Handle(setAddressCmd(testBase)); err != nil {
		t.Fatal(err)
	}
	getStatus(t, s)

	full := bytes.Repeat([]byte{0x11}, testTransferSize)
	driveDownload(t, s, 2, full)

	short := bytes.Repeat([]byte{0x22}, 100)
	driveDownload(t, s, 3, short)

	mem := flash.Bytes()
	if !bytes.Equal(mem[:testTransferSize], full) {
		t.Fatalf("first block mismatch")
	}
	if !bytes.Equal(mem[testTransferSize:testTransferSize+100], short) {
		t.Fatalf("second block not written at address_pointer+TRANSFER_SIZE")
	}
	for _, b := range mem[testTransferSize+100 : testTransferSize*2] {
		if b != 0xff {
			t.Fatalf("bytes past short block were written, got %#x", b)
		}
	}
}

func TestEraseAllThenManifest(t *testing.T) {
	s, flash := newSession(t)

	if _, err := s.Handle(dfu.DecodeRequest(dfu.ReqDnload, 0, 1, []byte{0x41})); err != nil {
		t.Fatal(err)
	}
	expectState(t, s, dfu.StateDnloadSync)

	st := getStatus(t, s)
	pollMS := uint32(st.Data[1]) | uint32(st.Data[2])<<8 | uint32(st.Data[3])<<16
	if pollMS == 0 {
		t.Fatalf("expected non-zero poll timeout for erase-all")
	}
	expectState(t, s, dfu.StateDnBusy)

	getStatus(t, s)
	expectState(t, s, dfu.StateDnloadIdle)

	if _, err := s.Handle(dfu.Command{Kind: dfu.CmdDnloadCommit}); err != nil {
		t.Fatal(err)
	}
	expectState(t, s, dfu.StateManifestSync)

	getStatus(t, s)
	expectState(t, s, dfu.StateManifest)

	getStatus(t, s)
	expectState(t, s, dfu.StateIdle) // manifestation tolerant: returns straight to dfuIDLE

	if !flash.Manifested {
		t.Fatalf("backend Manifest was not invoked")
	}
}

func TestProgramFailureRecoversViaClrStatus(t *testing.T) {
	s, _ := newSession(t)
	data := bytes.Repeat([]byte{0xaa}, 16)

	if _, err := s.Handle(setAddressCmd(testBase)); err != nil {
		t.Fatal(err)
	}
	getStatus(t, s)
	driveDownload(t, s, 2, data)

	// Back to dfuIDLE and start a fresh download at the same address,
	// which memsim.Flash now refuses since it was never re-erased.
	if _, err := s.Handle(dfu.Command{Kind: dfu.CmdAbort}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Handle(setAddressCmd(testBase)); err != nil {
		t.Fatal(err)
	}
	getStatus(t, s)

	if _, err := s.Handle(downloadCmd(2, data)); err != nil {
		t.Fatal(err)
	}
	getStatus(t, s)
	st := getStatus(t, s)

	expectState(t, s, dfu.StateError)
	if dfu.Status(st.Data[0]) != dfu.StatusErrProg {
		t.Fatalf("status = %s, want %s", dfu.Status(st.Data[0]), dfu.StatusErrProg)
	}

	if _, err := s.Handle(dfu.Command{Kind: dfu.CmdClrStatus}); err != nil {
		t.Fatal(err)
	}
	expectState(t, s, dfu.StateIdle)
}

func TestUploadShortReadEndsUpload(t *testing.T) {
	// A backend mapping fewer bytes than one full TRANSFER_SIZE models a
	// short final region: the single UPLOAD below requests 1024 bytes
	// but only 300 are available, ending the upload in one request.
	flash := memsim.New(testBase, 300, testTransferSize)
	s := dfu.NewSession(flash, 0)

	reply, err := s.Handle(dfu.Command{Kind: dfu.CmdUpload, BlockNum: 2, Length: testTransferSize})
	if err != nil {
		t.Fatal(err)
	}
	if len(reply.Data) != 300 {
		t.Fatalf("upload block length = %d, want %d", len(reply.Data), 300)
	}
	expectState(t, s, dfu.StateIdle)
}

func TestBusResetDuringManifestWaitReset(t *testing.T) {
	flash := memsim.New(testBase, 64*1024, testTransferSize)
	s := dfu.NewSession(&intolerantFlash{Flash: flash}, 0)

	if _, err := s.Handle(setAddressCmd(testBase)); err != nil {
		t.Fatal(err)
	}
	getStatus(t, s)
	driveDownload(t, s, 2, bytes.Repeat([]byte{0x44}, 16))

	if _, err := s.Handle(dfu.Command{Kind: dfu.CmdDnloadCommit}); err != nil {
		t.Fatal(err)
	}
	getStatus(t, s)
	getStatus(t, s)
	expectState(t, s, dfu.StateManifestWaitReset)

	s.BusReset()
	expectState(t, s, dfu.StateManifestWaitReset)
}

// intolerantFlash wraps memsim.Flash to report ManifestationTolerant=false,
// exercising the non-tolerant branch of the manifestation state table
// without needing a second backend implementation.
type intolerantFlash struct {
	*memsim.Flash
}

func (f *intolerantFlash) Info() dfu.MemoryInfo {
	info := f.Flash.Info()
	info.ManifestationTolerant = false
	return info
}
