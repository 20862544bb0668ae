// Example DFU gadget wiring
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package gadget demonstrates wiring a dfu.Class into a usb.Device, the way
// a board's main package would configure a single-function DFU updater.
// It is not a host programmer and does not run on its own: a surrounding
// USB device stack (assumed present, see the dfu package documentation)
// is expected to drive the returned usb.Device.
package gadget

import (
	"github.com/usbarmory/dfu/dfu"
	"github.com/usbarmory/dfu/example/memsim"
	"github.com/usbarmory/dfu/usb"
)

// Configure builds a usb.Device exposing a single DFU interface backed by
// an in-memory Flash simulator, and returns the dfu.Class bound to it so
// callers can also invoke BusReset on bus reset conditions.
func Configure(flash *memsim.Flash) (*usb.Device, *dfu.Class) {
	device := &usb.Device{Descriptor: &usb.DeviceDescriptor{}}
	device.Descriptor.SetDefaults()
	device.Descriptor.DeviceClass = 0x00
	// http://pid.codes/1209/ - test/prototype allocation
	device.Descriptor.VendorId = 0x1209
	device.Descriptor.ProductId = 0xdf00

	device.SetLanguageCodes([]uint16{0x0409})

	class := dfu.NewClass(flash, 0)

	infoIndex, _ := device.AddString(flash.Info().InfoString)

	iface := class.Descriptor()
	iface.Interface = infoIndex

	conf := &usb.ConfigurationDescriptor{}
	conf.SetDefaults()
	conf.AddInterface(iface)

	device.AddConfiguration(conf)
	device.Setup = class.Setup

	return device, class
}
