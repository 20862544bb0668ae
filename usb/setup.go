// USB control request support
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

// bmRequestType bit fields (p248, Table 9-2, USB2.0) - only the bits a
// class adapter needs to validate recipient and direction are named here.
const (
	requestTypeMask    = 0x60
	requestTypeClass   = 0x20
	recipientMask      = 0x1f
	recipientInterface = 0x01
	RequestDirectionIn = 1 << 7
)

// SetupData implements
// p276, Table 9-2. Format of Setup Data, USB2.0.
type SetupData struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// IsClassInterfaceRequest reports whether the setup packet is a
// class-specific request addressed to an interface recipient, the only kind
// DFU control requests use (p6, Table 3-1, DFU1.1).
func (s *SetupData) IsClassInterfaceRequest() bool {
	return s.RequestType&requestTypeMask == requestTypeClass && s.RequestType&recipientMask == recipientInterface
}

// Trim truncates buf to wLength when the host requested fewer bytes than
// are available, as required for every IN stage reply (p9.3.5, USB2.0).
func Trim(buf []byte, wLength uint16) []byte {
	if int(wLength) < len(buf) {
		return buf[:wLength]
	}
	return buf
}
