// Package ble resolves and connects to MXW01 printers over Bluetooth LE.
package ble

import "tinygo.org/x/bluetooth"

// The MXW01 GATT layout: one service exposing a control-write
// characteristic, a notify characteristic, and a bulk data-write
// characteristic. Some BLE stacks (macOS in particular) report the service
// as af30 instead of ae30; both spellings identify the same service.
var (
	ServiceUUID    = uuid16(0xae, 0x30)
	ServiceUUIDAlt = uuid16(0xaf, 0x30)

	ControlWriteUUID = uuid16(0xae, 0x01)
	NotifyUUID       = uuid16(0xae, 0x02)
	DataWriteUUID    = uuid16(0xae, 0x03)
)

func uuid16(hi, lo byte) bluetooth.UUID {
	return bluetooth.NewUUID([16]byte{
		0x00, 0x00, hi, lo, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0x80, 0x5f, 0x9b, 0x34, 0xfb,
	})
}
