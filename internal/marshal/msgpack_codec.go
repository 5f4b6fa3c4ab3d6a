package marshal

import "github.com/hashicorp/go-msgpack/codec"

// msgpackCodec backs spec.md §4.7's MessagePack serialization option with
// github.com/hashicorp/go-msgpack/codec, an indirect dependency of the
// retrieval pack's memberlist-based repos promoted to a direct, exercised
// use here.
type msgpackCodec struct{}

func (msgpackCodec) Format() Format { return FormatMsgpack }

func (msgpackCodec) Encode(v any) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &codec.MsgpackHandle{})
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

func (msgpackCodec) Decode(data []byte, out any) error {
	dec := codec.NewDecoderBytes(data, &codec.MsgpackHandle{})
	return dec.Decode(out)
}
