package tcp

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// hello is sent by the dialing side before any session bytes.
type hello struct {
	Address   string `cbor:"1,keyasint"`
	Name      string `cbor:"2,keyasint,omitempty"`
	ServiceID string `cbor:"3,keyasint"`
	Version   string `cbor:"4,keyasint"`
}

// helloReply answers a hello.
type helloReply struct {
	Accepted bool   `cbor:"1,keyasint"`
	Address  string `cbor:"2,keyasint,omitempty"`
	Name     string `cbor:"3,keyasint,omitempty"`
	Reason   string `cbor:"4,keyasint,omitempty"`
}

func writeMsg(w io.Writer, v any) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode hello: %w", err)
	}
	return writeFrame(w, data)
}

func readMsg(r io.Reader, v any) error {
	data, err := readFrame(r)
	if err != nil {
		return err
	}
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}
	return nil
}
