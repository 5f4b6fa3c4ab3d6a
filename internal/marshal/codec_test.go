package marshal

import "testing"

type echoPayload struct {
	Name   string `json:"name"`
	Values []int  `json:"values"`
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	in := echoPayload{Name: "Alice", Values: []int{1, 2, 3}}
	blob, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out echoPayload
	if err := c.Decode(blob, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Name != in.Name || len(out.Values) != len(in.Values) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestMsgpackCodecRoundTrip(t *testing.T) {
	c := msgpackCodec{}
	in := echoPayload{Name: "Bob", Values: []int{4, 5}}
	blob, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out echoPayload
	if err := c.Decode(blob, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Name != in.Name || len(out.Values) != len(in.Values) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestBincodeCodecRoundTrip(t *testing.T) {
	c := bincodeCodec{}
	in := echoPayload{Name: "Carol", Values: []int{7, 8, 9}}
	blob, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out echoPayload
	if err := c.Decode(blob, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Name != in.Name || len(out.Values) != len(in.Values) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestRegistryCallOverrideWinsOverDefault(t *testing.T) {
	r := NewRegistry(FormatJSON)

	c, err := r.Resolve("")
	if err != nil {
		t.Fatalf("Resolve default: %v", err)
	}
	if c.Format() != FormatJSON {
		t.Fatalf("got default %s, want json", c.Format())
	}

	c, err = r.Resolve(FormatMsgpack)
	if err != nil {
		t.Fatalf("Resolve override: %v", err)
	}
	if c.Format() != FormatMsgpack {
		t.Fatalf("got %s, want msgpack override to win", c.Format())
	}
}

func TestRegistryUnknownFormat(t *testing.T) {
	r := NewRegistry(FormatJSON)
	if _, err := r.Resolve(Format("custom-unregistered")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
