package marshal

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
)

// bincodeCodec backs spec.md §4.7's "Bincode" serialization option. No
// ecosystem Go library in the retrieval pack implements Rust's bincode wire
// format, so this one axis is built on the standard library
// (encoding/gob length-prefixed with encoding/binary) and justified as
// stdlib in DESIGN.md rather than grounded on a pack dependency.
type bincodeCodec struct{}

func (bincodeCodec) Format() Format { return FormatBincode }

func (bincodeCodec) Encode(v any) ([]byte, error) {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(v); err != nil {
		return nil, fmt.Errorf("marshal: bincode encode: %w", err)
	}
	out := make([]byte, 4+body.Len())
	binary.BigEndian.PutUint32(out, uint32(body.Len()))
	copy(out[4:], body.Bytes())
	return out, nil
}

func (bincodeCodec) Decode(data []byte, out any) error {
	if len(data) < 4 {
		return fmt.Errorf("marshal: bincode payload too short")
	}
	n := binary.BigEndian.Uint32(data)
	if uint64(len(data)) < 4+uint64(n) {
		return fmt.Errorf("marshal: bincode payload length mismatch: declared %d, have %d", n, len(data)-4)
	}
	return gob.NewDecoder(bytes.NewReader(data[4 : 4+n])).Decode(out)
}
