// USB descriptor support
// https://github.com/usbarmory/dfu
//
// Copyright (c) The DFU-Core Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package usb provides the minimal slice of a USB device stack that a
// device-side class implementation needs to be handed: descriptor types and
// the class-specific setup hook a stack invokes for requests it does not
// itself recognize. It does not drive any USB controller hardware - that is
// the surrounding device stack's job, assumed present by callers of this
// package.
package usb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// Standard USB descriptor sizes
const (
	DeviceDescriptorLength        = 18
	ConfigurationDescriptorLength = 9
	InterfaceDescriptorLength     = 9
	EndpointDescriptorLength      = 7
	StringDescriptorHeaderLength  = 2
)

// Standard descriptor types (p279, Table 9-5, USB2.0)
const (
	DescriptorDevice        = 1
	DescriptorConfiguration = 2
	DescriptorString        = 3
	DescriptorInterface     = 4
	DescriptorEndpoint      = 5
)

// DeviceDescriptor implements
// p290, Table 9-8. Standard Device Descriptor, USB2.0.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	BcdUSB            uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize     uint8
	VendorId          uint16
	ProductId         uint16
	Device            uint16
	Manufacturer      uint8
	Product           uint8
	SerialNumber      uint8
	NumConfigurations uint8
}

// SetDefaults initializes default values for the USB device descriptor.
func (d *DeviceDescriptor) SetDefaults() {
	d.Length = DeviceDescriptorLength
	d.DescriptorType = DescriptorDevice
	d.BcdUSB = 0x0200
	d.MaxPacketSize = 64
}

// Bytes converts the descriptor structure to byte array format.
func (d *DeviceDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// ConfigurationDescriptor implements
// p293, Table 9-10. Standard Configuration Descriptor, USB2.0.
type ConfigurationDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	Configuration      uint8
	Attributes         uint8
	MaxPower           uint8

	Interfaces []*InterfaceDescriptor
}

// SetDefaults initializes default values for the USB configuration
// descriptor.
func (d *ConfigurationDescriptor) SetDefaults() {
	d.Length = ConfigurationDescriptorLength
	d.DescriptorType = DescriptorConfiguration
	d.ConfigurationValue = 1
	// bus-powered
	d.Attributes = 0x80
	d.MaxPower = 250
}

// AddInterface adds an Interface Descriptor to a configuration, updating the
// interface number and Configuration Descriptor interface count
// accordingly.
func (d *ConfigurationDescriptor) AddInterface(iface *InterfaceDescriptor) {
	iface.InterfaceNumber = d.NumInterfaces
	d.NumInterfaces++
	d.Interfaces = append(d.Interfaces, iface)
}

// Bytes converts the descriptor structure to byte array format.
func (d *ConfigurationDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)

	binary.Write(buf, binary.LittleEndian, d.Length)
	binary.Write(buf, binary.LittleEndian, d.DescriptorType)
	binary.Write(buf, binary.LittleEndian, d.TotalLength)
	binary.Write(buf, binary.LittleEndian, d.NumInterfaces)
	binary.Write(buf, binary.LittleEndian, d.ConfigurationValue)
	binary.Write(buf, binary.LittleEndian, d.Configuration)
	binary.Write(buf, binary.LittleEndian, d.Attributes)
	binary.Write(buf, binary.LittleEndian, d.MaxPower)

	return buf.Bytes()
}

// InterfaceDescriptor implements
// p296, Table 9-12. Standard Interface Descriptor, USB2.0.
type InterfaceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	Interface         uint8

	Endpoints        []*EndpointDescriptor
	ClassDescriptors [][]byte
}

// SetDefaults initializes default values for the USB interface descriptor.
func (d *InterfaceDescriptor) SetDefaults() {
	d.Length = InterfaceDescriptorLength
	d.DescriptorType = DescriptorInterface
}

// Bytes converts the descriptor structure to byte array format, including
// any attached class descriptors and endpoint descriptors.
func (d *InterfaceDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)

	binary.Write(buf, binary.LittleEndian, d.Length)
	binary.Write(buf, binary.LittleEndian, d.DescriptorType)
	binary.Write(buf, binary.LittleEndian, d.InterfaceNumber)
	binary.Write(buf, binary.LittleEndian, d.AlternateSetting)
	binary.Write(buf, binary.LittleEndian, d.NumEndpoints)
	binary.Write(buf, binary.LittleEndian, d.InterfaceClass)
	binary.Write(buf, binary.LittleEndian, d.InterfaceSubClass)
	binary.Write(buf, binary.LittleEndian, d.InterfaceProtocol)
	binary.Write(buf, binary.LittleEndian, d.Interface)

	for _, classDesc := range d.ClassDescriptors {
		buf.Write(classDesc)
	}

	for _, ep := range d.Endpoints {
		buf.Write(ep.Bytes())
	}

	return buf.Bytes()
}

// EndpointFunction processes IN or OUT transfers on an endpoint other than
// EP0. The DFU class adapter does not register one: all DFU traffic rides
// control transfers on EP0, handled through SetupFunction instead.
type EndpointFunction func(buf []byte, lastErr error) (res []byte, err error)

// EndpointDescriptor implements
// p297, Table 9-13. Standard Endpoint Descriptor, USB2.0.
type EndpointDescriptor struct {
	Length          uint8
	DescriptorType  uint8
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8

	Function EndpointFunction
}

// SetDefaults initializes default values for the USB endpoint descriptor.
func (d *EndpointDescriptor) SetDefaults() {
	d.Length = EndpointDescriptorLength
	d.DescriptorType = DescriptorEndpoint
}

// Bytes converts the descriptor structure to byte array format.
func (d *EndpointDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)

	binary.Write(buf, binary.LittleEndian, d.Length)
	binary.Write(buf, binary.LittleEndian, d.DescriptorType)
	binary.Write(buf, binary.LittleEndian, d.EndpointAddress)
	binary.Write(buf, binary.LittleEndian, d.Attributes)
	binary.Write(buf, binary.LittleEndian, d.MaxPacketSize)
	binary.Write(buf, binary.LittleEndian, d.Interval)

	return buf.Bytes()
}

// StringDescriptor implements
// p273, 9.6.7 String, USB2.0.
type StringDescriptor struct {
	Length         uint8
	DescriptorType uint8
}

// SetDefaults initializes default values for the USB string descriptor.
func (d *StringDescriptor) SetDefaults() {
	d.Length = StringDescriptorHeaderLength
	d.DescriptorType = DescriptorString
}

// Bytes converts the descriptor structure to byte array format.
func (d *StringDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)

	binary.Write(buf, binary.LittleEndian, d.Length)
	binary.Write(buf, binary.LittleEndian, d.DescriptorType)

	return buf.Bytes()
}

// SetupFunction processes class-specific control requests the surrounding
// USB stack does not itself recognize (p9.4, USB2.0). It returns the IN
// stage payload, if any; a non-nil err signals the stack to stall EP0.
type SetupFunction func(setup *SetupData, payload []byte) (in []byte, err error)

// Device is a collection of USB device descriptors and host driven settings
// representing a USB device, mirroring the minimal contract a device-side
// class needs to be handed by the surrounding stack.
type Device struct {
	Descriptor     *DeviceDescriptor
	Configurations []*ConfigurationDescriptor
	Strings        [][]byte

	// Host requested settings
	ConfigurationValue uint8
	AlternateSetting   uint8

	// Setup is the optional class-specific setup handler, invoked by the
	// stack for requests it does not itself recognize.
	Setup SetupFunction
}

func (d *Device) setStringDescriptor(s []byte, zero bool) (uint8, error) {
	var buf []byte

	desc := &StringDescriptor{}
	desc.SetDefaults()
	desc.Length += uint8(len(s))

	if desc.Length > 255 {
		return 0, fmt.Errorf("string descriptor size (%d) cannot exceed 255", desc.Length)
	}

	buf = append(buf, desc.Bytes()...)
	buf = append(buf, s...)

	if zero && len(d.Strings) >= 1 {
		d.Strings[0] = buf
	} else {
		d.Strings = append(d.Strings, buf)
	}

	return uint8(len(d.Strings) - 1), nil
}

// SetLanguageCodes configures String Descriptor Zero language codes
// (p273, Table 9-15, USB2.0).
func (d *Device) SetLanguageCodes(codes []uint16) error {
	if len(codes) > 1 {
		return errors.New("only a single language is currently supported")
	}

	var buf []byte
	for _, c := range codes {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, c)
		buf = append(buf, b...)
	}

	_, err := d.setStringDescriptor(buf, true)
	return err
}

// AddString adds a UTF-16LE string descriptor to a USB device, returning
// its index for use in other descriptors' string index fields.
func (d *Device) AddString(s string) (uint8, error) {
	var buf []byte

	u := utf16.Encode([]rune(s))
	for _, c := range u {
		buf = append(buf, byte(c&0xff), byte(c>>8))
	}

	return d.setStringDescriptor(buf, false)
}

// AddConfiguration adds a Configuration Descriptor to a device, updating its
// Device Descriptor configuration count accordingly.
func (d *Device) AddConfiguration(conf *ConfigurationDescriptor) error {
	d.Configurations = append(d.Configurations, conf)

	if d.Descriptor == nil {
		return errors.New("invalid device descriptor")
	}

	d.Descriptor.NumConfigurations++
	return nil
}

// Configuration converts the device configuration hierarchy to a buffer, as
// expected for a Get Descriptor request for the configuration descriptor
// type (p281, 9.4.3, USB2.0).
func (d *Device) Configuration(index uint16) ([]byte, error) {
	if int(index) >= len(d.Configurations) {
		return nil, errors.New("invalid configuration index")
	}

	conf := d.Configurations[index]

	var buf []byte
	for _, iface := range conf.Interfaces {
		buf = append(buf, iface.Bytes()...)
	}

	conf.TotalLength = uint16(int(conf.Length) + len(buf))

	return append(conf.Bytes(), buf...), nil
}
