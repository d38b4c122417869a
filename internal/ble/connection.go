package ble

import (
	"fmt"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

// ConnectionError is fatal: the transport couldn't be established or the
// device is missing the expected service or characteristics.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Connection is a live GATT link to a printer with its three
// characteristics resolved. It lives for exactly one print session.
type Connection struct {
	device    bluetooth.Device
	control   bluetooth.DeviceCharacteristic
	notify    bluetooth.DeviceCharacteristic
	data      bluetooth.DeviceCharacteristic
	notifying bool
	log       *zap.Logger
}

// Connect dials the address, locates the printer service under either UUID
// spelling and resolves the control, notify and data characteristics.
// Failure to find any of them is fatal.
func Connect(adapter *bluetooth.Adapter, address bluetooth.Address, log *zap.Logger) (*Connection, error) {
	device, err := adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	log.Debug("connected, discovering services")

	services, err := device.DiscoverServices(nil)
	if err != nil {
		device.Disconnect()
		return nil, &ConnectionError{Op: "discover services", Err: err}
	}

	var service *bluetooth.DeviceService
	for i := range services {
		uuid := services[i].UUID()
		if uuid == ServiceUUID || uuid == ServiceUUIDAlt {
			service = &services[i]
			break
		}
	}
	if service == nil {
		device.Disconnect()
		return nil, &ConnectionError{
			Op:  "discover services",
			Err: fmt.Errorf("device does not expose service %s (or alternate %s)", ServiceUUID, ServiceUUIDAlt),
		}
	}
	log.Debug("found printer service", zap.String("uuid", service.UUID().String()))

	chars, err := service.DiscoverCharacteristics([]bluetooth.UUID{
		ControlWriteUUID, NotifyUUID, DataWriteUUID,
	})
	if err != nil {
		device.Disconnect()
		return nil, &ConnectionError{Op: "discover characteristics", Err: err}
	}
	if len(chars) != 3 {
		device.Disconnect()
		return nil, &ConnectionError{
			Op:  "discover characteristics",
			Err: fmt.Errorf("expected control, notify and data characteristics, found %d", len(chars)),
		}
	}

	return &Connection{
		device:  device,
		control: chars[0],
		notify:  chars[1],
		data:    chars[2],
		log:     log,
	}, nil
}

// StartNotifications subscribes to the notify characteristic. The handler
// runs on the BLE stack's delivery goroutine and must not block.
func (c *Connection) StartNotifications(handler func(data []byte)) error {
	if err := c.notify.EnableNotifications(handler); err != nil {
		return &ConnectionError{Op: "enable notifications", Err: err}
	}
	c.notifying = true
	return nil
}

// WriteControl writes a command packet to the control characteristic.
func (c *Connection) WriteControl(data []byte) error {
	if _, err := c.control.WriteWithoutResponse(data); err != nil {
		return &ConnectionError{Op: "control write", Err: err}
	}
	return nil
}

// WriteData writes one chunk of image data to the bulk data characteristic.
func (c *Connection) WriteData(data []byte) error {
	if _, err := c.data.WriteWithoutResponse(data); err != nil {
		return &ConnectionError{Op: "data write", Err: err}
	}
	return nil
}

// StopNotifications unsubscribes from the notify characteristic.
func (c *Connection) StopNotifications() error {
	if !c.notifying {
		return nil
	}
	c.notifying = false
	if err := c.notify.EnableNotifications(nil); err != nil {
		return &ConnectionError{Op: "disable notifications", Err: err}
	}
	return nil
}

// Disconnect tears the link down.
func (c *Connection) Disconnect() error {
	if err := c.device.Disconnect(); err != nil {
		return &ConnectionError{Op: "disconnect", Err: err}
	}
	return nil
}
