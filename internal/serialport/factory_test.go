package serialport

import "testing"

func TestOpen_InvalidPath(t *testing.T) {
	// No serial hardware in unit tests; a missing device must fail cleanly.
	port, err := Open("/dev/nonexistent-serial-port-12345", Options{BaudRate: 115200})
	if err == nil {
		t.Error("Expected error when opening non-existent serial port")
		if port != nil {
			port.Close()
		}
	}
	if err != nil && port != nil {
		t.Error("Expected nil port when error is returned")
	}
}

func TestOpen_InvalidOptions(t *testing.T) {
	if _, err := Open("/dev/null", Options{DataBits: 12}); err == nil {
		t.Error("Expected error for invalid data bits")
	}
}
