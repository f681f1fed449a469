// Package bluez implements transport.Adapter with Bluetooth RFCOMM through
// the BlueZ D-Bus API.
//
// Listen registers an org.bluez.Profile1 object in the server role for the
// service UUID; Dial registers the same UUID in the client role and asks the
// peer's Device1 object to ConnectProfile. In both cases BlueZ hands the
// connected RFCOMM socket to Profile1.NewConnection as a file descriptor,
// which is made non-blocking and wrapped in an *os.File so that Close
// unblocks a pending Read.
//
// Pairing is outside this package: a BlueZ agent must already be registered
// if the peer requires it.
package bluez
