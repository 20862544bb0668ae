// USB DFU class adapter
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dfu

import (
	"fmt"

	"github.com/usbarmory/dfu/usb"
)

// DFU interface class triple (p5, §4.2.1, DFU1.1).
const (
	InterfaceClass    = 0xfe
	InterfaceSubClass = 0x01
	InterfaceProtocol = 0x02
)

// Class binds a Session to a usb.Device: it builds the interface and
// functional descriptors DFU requires and supplies the usb.SetupFunction
// the surrounding stack invokes for requests it does not itself recognize.
type Class struct {
	Session *Session
}

// NewClass constructs a Class wrapping a new Session bound to backend at
// DFU interface number iface.
func NewClass(backend Backend, iface uint8) *Class {
	return &Class{Session: NewSession(backend, iface)}
}

// Descriptor builds the DFU interface descriptor, including its functional
// descriptor, ready for attachment to a usb.ConfigurationDescriptor. The
// returned descriptor has zero endpoints: DFU uses control transfers on
// EP0 exclusively (p4, §4.2.1).
func (c *Class) Descriptor() *usb.InterfaceDescriptor {
	info := c.Session.info

	fd := &usb.DFUFunctionalDescriptor{}
	fd.SetDefaults()
	fd.DetachTimeOut = info.DetachTimeoutMS
	fd.TransferSize = info.TransferSize
	fd.Attributes = usb.DFUAttrCanDnload | usb.DFUAttrCanUpload
	if info.ManifestationTolerant {
		fd.Attributes |= usb.DFUAttrManifestationTolerant
	}

	iface := &usb.InterfaceDescriptor{}
	iface.SetDefaults()
	iface.InterfaceNumber = c.Session.iface
	iface.InterfaceClass = InterfaceClass
	iface.InterfaceSubClass = InterfaceSubClass
	iface.InterfaceProtocol = InterfaceProtocol
	iface.ClassDescriptors = [][]byte{fd.Bytes()}

	return iface
}

// Setup implements usb.SetupFunction. It validates that the request is a
// class request addressed to this adapter's interface, decodes it and
// dispatches to the Session.
func (c *Class) Setup(setup *usb.SetupData, payload []byte) ([]byte, error) {
	if !setup.IsClassInterfaceRequest() {
		return nil, fmt.Errorf("dfu: not a class/interface request")
	}

	if uint8(setup.Index) != c.Session.iface {
		return nil, fmt.Errorf("dfu: request addressed to interface %d, not %d", setup.Index, c.Session.iface)
	}

	cmd := DecodeRequest(setup.Request, setup.Value, setup.Length, payload)

	reply, err := c.Session.Handle(cmd)
	if reply.Stall {
		if err == nil {
			err = fmt.Errorf("dfu: request stalled in state %s", c.Session.State())
		}
		return nil, err
	}

	return usb.Trim(reply.Data, setup.Length), nil
}

// BusReset notifies the adapter's Session of a USB bus reset.
func (c *Class) BusReset() {
	c.Session.BusReset()
}
