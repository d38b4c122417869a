package ble

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

// DiscoveryError reports that no matching device advertised within the
// scan window.
type DiscoveryError struct {
	Identifier string
	Timeout    time.Duration
}

func (e *DiscoveryError) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("no printer advertising the MXW01 service found within %s", e.Timeout)
	}
	return fmt.Sprintf("no device named %q found within %s", e.Identifier, e.Timeout)
}

// Resolve turns a user-supplied identifier into a connectable address.
// Address-shaped identifiers (UUID form, as macOS reports, or
// colon-separated MAC form) are used directly without scanning. Anything
// else starts a filtered scan: by advertised service when the identifier
// is empty, by advertised name otherwise.
func Resolve(adapter *bluetooth.Adapter, identifier string, timeout time.Duration, log *zap.Logger) (bluetooth.Address, error) {
	if isAddressToken(identifier) {
		var addr bluetooth.Address
		addr.Set(identifier)
		log.Debug("identifier is an address, skipping scan", zap.String("address", identifier))
		return addr, nil
	}
	return scan(adapter, identifier, timeout, log)
}

func isAddressToken(identifier string) bool {
	if _, err := bluetooth.ParseUUID(identifier); err == nil {
		return true
	}
	return looksLikeMAC(identifier)
}

func looksLikeMAC(s string) bool {
	groups := strings.Split(s, ":")
	if len(groups) != 6 {
		return false
	}
	for _, g := range groups {
		if len(g) != 2 {
			return false
		}
		for _, c := range g {
			isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
			if !isHex {
				return false
			}
		}
	}
	return true
}

func scan(adapter *bluetooth.Adapter, identifier string, timeout time.Duration, log *zap.Logger) (bluetooth.Address, error) {
	match := func(result bluetooth.ScanResult) bool {
		if identifier == "" {
			return result.HasServiceUUID(ServiceUUID) || result.HasServiceUUID(ServiceUUIDAlt)
		}
		return result.LocalName() == identifier
	}

	if identifier == "" {
		log.Info("scanning for a printer advertising the MXW01 service", zap.Duration("timeout", timeout))
	} else {
		log.Info("scanning for device by name", zap.String("name", identifier), zap.Duration("timeout", timeout))
	}

	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)
	go func() {
		err := adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if match(result) {
				select {
				case found <- result:
				default:
				}
				adapter.StopScan()
			}
		})
		if err != nil {
			scanErr <- err
		}
	}()

	select {
	case result := <-found:
		log.Info("found device",
			zap.String("name", result.LocalName()),
			zap.String("address", result.Address.String()),
		)
		return result.Address, nil
	case err := <-scanErr:
		return bluetooth.Address{}, fmt.Errorf("scan failed: %w", err)
	case <-time.After(timeout):
		adapter.StopScan()
		return bluetooth.Address{}, &DiscoveryError{Identifier: identifier, Timeout: timeout}
	}
}
