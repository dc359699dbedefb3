package dbus

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestDecodeTruncatedInputIsFormatError(t *testing.T) {
	// A uint64 needs 8 bytes; give it 3.
	buf := bytes.NewReader([]byte{1, 2, 3})
	dec := NewDecoder(buf, binary.LittleEndian)
	var v uint64
	err := dec.Decode(&v)
	if err == nil {
		t.Fatal("expected an error decoding truncated input")
	}
	if _, ok := err.(FormatError); !ok {
		t.Errorf("expected FormatError, got %T: %v", err, err)
	}
}

func TestDecodeInvalidBoolIsError(t *testing.T) {
	var buf bytes.Buffer
	enc := newEncoder(&buf, binary.LittleEndian, nil)
	if err := enc.Encode(uint32(7)); err != nil {
		t.Fatal(err)
	}
	dec := NewDecoder(&buf, binary.LittleEndian)
	var b bool
	if err := dec.Decode(&b); err == nil {
		t.Error("expected an error decoding an out-of-range boolean value")
	}
}

func TestDecodeArrayOverMessageSizeLimit(t *testing.T) {
	var buf bytes.Buffer
	// Fabricate a declared array byte-length that exceeds the message
	// size cap without actually allocating that much data.
	lenBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBytes, maxMessageSize+1)
	buf.Write(lenBytes)

	dec := NewDecoder(&buf, binary.LittleEndian)
	var v []byte
	err := dec.Decode(&v)
	if err == nil {
		t.Fatal("expected error decoding an array whose declared length exceeds the message size limit")
	}
}

func TestDecodeMulti(t *testing.T) {
	var wbuf bytes.Buffer
	enc := newEncoder(&wbuf, binary.LittleEndian, nil)
	if err := enc.Encode(uint32(1), "two", byte(3)); err != nil {
		t.Fatal(err)
	}
	dec := NewDecoder(&wbuf, binary.LittleEndian)
	var a uint32
	var b string
	var c byte
	if err := dec.DecodeMulti(&a, &b, &c); err != nil {
		t.Fatal(err)
	}
	if a != 1 || b != "two" || c != 3 {
		t.Errorf("got (%v, %v, %v), want (1, two, 3)", a, b, c)
	}
}
