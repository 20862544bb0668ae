// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package memsim_test

import (
	"bytes"
	"testing"

	"github.com/usbarmory/dfu/dfu"
	"github.com/usbarmory/dfu/example/memsim"
)

func TestProgramRequiresErase(t *testing.T) {
	f := memsim.New(0x1000, 8192, 1024)

	data := bytes.Repeat([]byte{0x42}, 16)
	if status, err := f.Program(0x1000, data); status != dfu.StatusOK || err != nil {
		t.Fatalf("first program: status=%s err=%v", status, err)
	}

	if status, _ := f.Program(0x1000, data); status != dfu.StatusErrProg {
		t.Fatalf("reprogram without erase: status=%s, want %s", status, dfu.StatusErrProg)
	}

	if status, err := f.Erase(0x1000); status != dfu.StatusOK || err != nil {
		t.Fatalf("erase: status=%s err=%v", status, err)
	}

	if status, err := f.Program(0x1000, data); status != dfu.StatusOK || err != nil {
		t.Fatalf("program after erase: status=%s err=%v", status, err)
	}
}

func TestEraseAllAndFault(t *testing.T) {
	f := memsim.New(0, 4096, 1024)

	f.Fault = dfu.StatusErrErase
	if status, _ := f.EraseAll(); status != dfu.StatusErrErase {
		t.Fatalf("status = %s, want injected fault", status)
	}

	// Fault is consumed by the prior call.
	if status, err := f.EraseAll(); status != dfu.StatusOK || err != nil {
		t.Fatalf("erase-all after fault cleared: status=%s err=%v", status, err)
	}
}

func TestReadOutOfRange(t *testing.T) {
	f := memsim.New(0x2000, 1024, 256)

	buf := make([]byte, 16)
	if _, status, err := f.Read(0x1000, buf); status != dfu.StatusErrAddress || err == nil {
		t.Fatalf("expected out-of-range read to fail, got status=%s err=%v", status, err)
	}
}
