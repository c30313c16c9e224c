// Package kv is a reference key-value StateMachine for pkg/raft: the
// commands a client submits and the store they act on.
package kv

import (
	"bytes"
	"fmt"

	"github.com/coreraft/raft/pkg/raft"
)

// unitSeparator delimits fields within an encoded command, matching the
// original kvstore command wire format.
const unitSeparator byte = 0x1f

// Op is a raft.Command that also knows how to encode/decode itself, so
// internal/store can persist log entries without depending on this
// package's concrete types.
type Op interface {
	raft.Command
	Name() string
	Encode(*bytes.Buffer)
}

// EncodeOp serializes an Op as "<name>\x1f<payload>".
func EncodeOp(op Op) []byte {
	var buf bytes.Buffer
	buf.WriteString(op.Name())
	buf.WriteByte(unitSeparator)
	op.Encode(&buf)
	return buf.Bytes()
}

// DecodeOp is the inverse of EncodeOp. Unknown op names are an error so
// that a corrupted or foreign log entry cannot be silently misapplied.
func DecodeOp(data []byte) (Op, error) {
	sep := bytes.IndexByte(data, unitSeparator)
	if sep == -1 {
		return nil, fmt.Errorf("kv: invalid op encoding")
	}

	name := string(data[:sep])
	payload := data[sep+1:]

	switch name {
	case "put":
		return decodePut(payload)
	case "delete":
		return decodeDelete(payload)
	default:
		return nil, fmt.Errorf("kv: unknown op %q", name)
	}
}

// PutOp sets a key to a value.
type PutOp struct {
	Key   string
	Value string
}

func (op PutOp) Name() string { return "put" }

func (op PutOp) Encode(buf *bytes.Buffer) {
	buf.WriteString(op.Key)
	buf.WriteByte(unitSeparator)
	buf.WriteString(op.Value)
}

func (op PutOp) ApplyTo(sm raft.StateMachine) {
	sm.(*StateMachine).store.Put(op.Key, op.Value)
}

func decodePut(data []byte) (Op, error) {
	sep := bytes.IndexByte(data, unitSeparator)
	if sep == -1 {
		return nil, fmt.Errorf("kv: invalid put encoding")
	}
	return PutOp{Key: string(data[:sep]), Value: string(data[sep+1:])}, nil
}

// DeleteOp removes a key.
type DeleteOp struct {
	Key string
}

func (op DeleteOp) Name() string { return "delete" }

func (op DeleteOp) Encode(buf *bytes.Buffer) {
	buf.WriteString(op.Key)
}

func (op DeleteOp) ApplyTo(sm raft.StateMachine) {
	sm.(*StateMachine).store.Delete(op.Key)
}

func decodeDelete(data []byte) (Op, error) {
	return DeleteOp{Key: string(data)}, nil
}

// Codec adapts EncodeOp/DecodeOp to internal/store's CommandCodec, so
// FileLog can persist and reload PutOp/DeleteOp entries without
// depending on this package's concrete types.
type Codec struct{}

func (Codec) Encode(command raft.Command) ([]byte, error) {
	op, ok := command.(Op)
	if !ok {
		return nil, fmt.Errorf("kv: command %T is not an Op", command)
	}
	return EncodeOp(op), nil
}

func (Codec) Decode(data []byte) (raft.Command, error) {
	op, err := DecodeOp(data)
	if err != nil {
		return nil, err
	}
	return op, nil
}
