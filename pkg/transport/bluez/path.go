package bluez

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/nfchandover/handover-go/pkg/transport"
)

const (
	bluezService         = "org.bluez"
	bluezRoot            = dbus.ObjectPath("/org/bluez")
	profileInterfaceName = "org.bluez.Profile1"
	profileManagerIface  = "org.bluez.ProfileManager1"
	deviceIface          = "org.bluez.Device1"
	adapterIface         = "org.bluez.Adapter1"
	propsIface           = "org.freedesktop.DBus.Properties"

	// DefaultAdapter is the adapter used when none is configured.
	DefaultAdapter = "hci0"
)

// ErrAdapterNotFound is returned when the configured adapter does not exist.
var ErrAdapterNotFound = errors.New("bluetooth adapter not found")

// adapterPath returns the object path of an adapter such as hci0.
func adapterPath(name string) dbus.ObjectPath {
	return bluezRoot + "/" + dbus.ObjectPath(name)
}

// devicePath returns the Device1 object path for address under adapter.
func devicePath(adapter dbus.ObjectPath, address string) dbus.ObjectPath {
	return adapter + "/dev_" + dbus.ObjectPath(strings.ReplaceAll(strings.ToUpper(address), ":", "_"))
}

// addressFromPath extracts XX:XX:XX:XX:XX:XX from .../dev_XX_XX_XX_XX_XX_XX.
func addressFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(s[idx+5:], "_", ":"))
}

// classifyError maps BlueZ D-Bus errors onto transport errors.
func classifyError(op string, err error) error {
	var dbusErr dbus.Error
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) && dbusErrPtr != nil {
		dbusErr = *dbusErrPtr
	}
	if dbusErr.Name != "" || errors.As(err, &dbusErr) {
		msg := strings.ToLower(fmt.Sprint(dbusErr.Body...))
		switch {
		case dbusErr.Name == "org.freedesktop.DBus.Error.UnknownObject",
			dbusErr.Name == "org.bluez.Error.DoesNotExist",
			dbusErr.Name == "org.bluez.Error.NotAvailable",
			strings.Contains(msg, "host is down"),
			strings.Contains(msg, "page timeout"):
			return fmt.Errorf("%s: %w: %v", op, transport.ErrUnreachable, err)
		case strings.Contains(msg, "refused"),
			dbusErr.Name == "org.bluez.Error.Rejected",
			dbusErr.Name == "org.bluez.Error.NotSupported":
			return fmt.Errorf("%s: %w: %v", op, transport.ErrRefused, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
