// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

// Package grpc binds the shared mempool's Transport contract (pkg/transport)
// to a real gRPC service. No .proto-generated stubs travel with the teacher
// this module is built from, so the wire messages are plain Go structs
// carried over a hand-registered grpc.ServiceDesc, using the same
// encoding.Codec extension point grpc-go exposes for non-protobuf payloads.
package grpc

import (
	"bytes"
	"encoding/gob"

	"github.com/golang/snappy"
	"google.golang.org/grpc/encoding"
)

const codecName = "meridian-gob-snappy"

// Codec gob-encodes a message and snappy-compresses the result, the same
// compression the teacher's stack already depends on for block payloads.
type Codec struct{}

func (Codec) Name() string { return codecName }

func (Codec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewReader(raw)).Decode(v)
}

func init() {
	encoding.RegisterCodec(Codec{})
}
