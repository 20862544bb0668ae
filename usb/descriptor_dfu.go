// USB DFU functional descriptor
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import (
	"bytes"
	"encoding/binary"
)

const DFUFunctionalDescriptorLength = 9

// DFU functional descriptor attribute bits (p5, Table 4-2, DFU1.1).
const (
	DFUAttrWillDetach            = 1 << 3
	DFUAttrManifestationTolerant = 1 << 2
	DFUAttrCanUpload             = 1 << 1
	DFUAttrCanDnload             = 1 << 0
)

// DFUFunctionalDescriptor implements
// p5, Table 4-2, Table 4-2. DFU Functional Descriptor, DFU1.1.
type DFUFunctionalDescriptor struct {
	Length         uint8
	DescriptorType uint8
	Attributes     uint8
	DetachTimeOut  uint16
	TransferSize   uint16
	DFUVersion     uint16
}

// SetDefaults initializes default values for the DFU functional descriptor.
func (d *DFUFunctionalDescriptor) SetDefaults() {
	d.Length = DFUFunctionalDescriptorLength
	d.DescriptorType = 0x21
	d.DFUVersion = 0x011a
}

// Bytes converts the descriptor structure to byte array format.
func (d *DFUFunctionalDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}
