// Package session owns the single Bluetooth peer session of a handover node.
//
// A Manager drives one connection.Machine and three kinds of worker: an
// accept loop while Listening, a dial worker while Connecting, and a read
// pump while Connected. Workers never touch shared fields directly. They
// commit transitions through the machine, and every observable change is
// delivered as a typed Event on one ordered channel:
//
//	m := session.NewManager(adapter, session.DefaultConfig())
//	defer m.Close()
//
//	if err := m.Listen(); err != nil {
//		return err
//	}
//	for ev := range m.Events() {
//		switch ev.Type {
//		case session.EventStateChange:
//			fmt.Println(ev.From, "->", ev.To, ev.PeerName)
//		case session.EventRead:
//			fmt.Printf("%s\n", ev.Data)
//		case session.EventError:
//			fmt.Println("error:", ev.Err)
//		}
//	}
//
// The transition to None is the single release point: whichever caller or
// worker commits it closes the listener or conn and cancels a pending dial.
package session
