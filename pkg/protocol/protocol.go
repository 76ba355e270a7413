// Package protocol implements the length-prefixed framing and message
// shapes of the attach protocol (spec §6): a 4-byte big-endian length
// followed by a UTF-8 JSON payload carrying a "type" discriminator and a
// "data" field. It is grounded in pkg/daemon/protocol.go's Message/payload
// shape, generalized from daemon-renderer payloads to the server/client
// exchange of spec §4.11/§6.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame so a hostile or corrupt peer can't
// force an unbounded allocation from a garbage length prefix.
const MaxFrameSize = 16 * 1024 * 1024

// Type discriminates an Envelope's Data payload.
type Type string

// Client -> Server message types (spec §6).
const (
	TypeInput   Type = "Input"
	TypeResize  Type = "Resize"
	TypeCommand Type = "Command"
	TypeAttach  Type = "Attach"
	TypeDetach  Type = "Detach"
	// TypeKill is the CLI's "mux kill" message. It is not a MuxCommand
	// (spec §4.8's vocabulary has no Kill variant); it is a distinct
	// top-level control message a client can send in place of applying a
	// mutation, because killing a session is a transport-level request, not
	// a layout operation (see DESIGN.md).
	TypeKill Type = "Kill"
)

// Server -> Client message types (spec §6).
const (
	TypeHello          Type = "Hello"
	TypeStateSync      Type = "StateSync"
	TypeOutput         Type = "Output"
	TypePaneExited     Type = "PaneExited"
	TypeServerShutdown Type = "ServerShutdown"
)

// Envelope is the single JSON-compatible object every frame carries: a
// discriminator field "type" and a "data" field (spec §6).
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WriteFrame writes one length-prefixed frame to w: a 4-byte big-endian
// length followed by payload (spec §6).
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("protocol: frame too large (%d bytes)", len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("protocol: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("protocol: frame too large (%d bytes)", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("protocol: read frame payload: %w", err)
	}
	return payload, nil
}

// Marshal wraps v in an Envelope tagged typ and returns the envelope's JSON
// bytes, ready to pass to WriteFrame.
func Marshal(typ Type, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s payload: %w", typ, err)
	}
	env := Envelope{Type: typ, Data: data}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal envelope: %w", err)
	}
	return payload, nil
}

// Send marshals v, wraps it in an Envelope tagged typ, and writes it as one
// frame.
func Send(w io.Writer, typ Type, v interface{}) error {
	payload, err := Marshal(typ, v)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// Receive reads one frame and unmarshals its envelope.
func Receive(r io.Reader) (Envelope, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: unmarshal envelope: %w", err)
	}
	return env, nil
}
