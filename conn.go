package gatt

import "net"

// A BDAddr (Bluetooth Device Address) is a hardware-addressed-based net.Addr.
type BDAddr struct{ net.HardwareAddr }

func (a BDAddr) Network() string { return "BLE" }

// A Conn is a connection from a central to the local server,
// provided by the radio driver.
type Conn interface {
	// LocalAddr returns the address of the local device (peripheral).
	LocalAddr() BDAddr

	// RemoteAddr returns the address of the connected device (central).
	RemoteAddr() BDAddr

	// Close disconnects the connection.
	Close() error

	// MTU returns the current connection mtu.
	MTU() int

	// Security returns the security established on the link.
	Security() LinkSecurity

	// Notify sends a Handle Value Notification.
	Notify(h uint16, data []byte) error

	// Indicate sends a Handle Value Indication and waits for the
	// central's confirmation.
	Indicate(h uint16, data []byte) error
}
