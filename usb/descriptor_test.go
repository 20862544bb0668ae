// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb_test

import (
	"bytes"
	"testing"

	"github.com/usbarmory/dfu/usb"
)

func TestDeviceDescriptorBytesLength(t *testing.T) {
	d := &usb.DeviceDescriptor{}
	d.SetDefaults()

	if n := len(d.Bytes()); n != usb.DeviceDescriptorLength {
		t.Fatalf("length = %d, want %d", n, usb.DeviceDescriptorLength)
	}
}

func TestDFUFunctionalDescriptorBytesLength(t *testing.T) {
	d := &usb.DFUFunctionalDescriptor{}
	d.SetDefaults()
	d.TransferSize = 2048

	b := d.Bytes()
	if n := len(b); n != usb.DFUFunctionalDescriptorLength {
		t.Fatalf("length = %d, want %d", n, usb.DFUFunctionalDescriptorLength)
	}
	if b[1] != 0x21 {
		t.Fatalf("bDescriptorType = %#x, want 0x21", b[1])
	}
	if b[5] != 0x00 || b[6] != 0x08 {
		t.Fatalf("wTransferSize not little-endian encoded: %v", b[5:7])
	}
}

func TestConfigurationAddInterfaceNumbering(t *testing.T) {
	conf := &usb.ConfigurationDescriptor{}
	conf.SetDefaults()

	i0 := &usb.InterfaceDescriptor{}
	i0.SetDefaults()
	i1 := &usb.InterfaceDescriptor{}
	i1.SetDefaults()

	conf.AddInterface(i0)
	conf.AddInterface(i1)

	if i0.InterfaceNumber != 0 || i1.InterfaceNumber != 1 {
		t.Fatalf("interface numbers = %d, %d, want 0, 1", i0.InterfaceNumber, i1.InterfaceNumber)
	}
	if conf.NumInterfaces != 2 {
		t.Fatalf("NumInterfaces = %d, want 2", conf.NumInterfaces)
	}
}

func TestAddStringRoundTrip(t *testing.T) {
	d := &usb.Device{Descriptor: &usb.DeviceDescriptor{}}
	d.Descriptor.SetDefaults()

	idx, err := d.AddString("memsim")
	if err != nil {
		t.Fatal(err)
	}
	if idx != 0 {
		t.Fatalf("index = %d, want 0", idx)
	}
	if len(d.Strings) != 1 {
		t.Fatalf("expected one string descriptor, got %d", len(d.Strings))
	}

	want := []byte{14, usb.DescriptorString, 'm', 0, 'e', 0, 'm', 0, 's', 0, 'i', 0, 'm', 0}
	if !bytes.Equal(d.Strings[0], want) {
		t.Fatalf("string descriptor = %v, want %v", d.Strings[0], want)
	}
}
