package compress

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	data := bytes.Repeat([]byte("header metadata "), 64)
	enc, err := c.Encode(data)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != frameZstd {
		t.Fatalf("repetitive data should compress, marker 0x%02x", enc[0])
	}
	if len(enc) >= len(data) {
		t.Fatalf("compressed frame not smaller: %d >= %d", len(enc), len(data))
	}

	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, data) {
		t.Fatal("round trip mismatch")
	}
}

func TestSmallValueStaysRaw(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	data := []byte("short")
	enc, err := c.Encode(data)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != frameRaw {
		t.Fatalf("small value should stay raw, marker 0x%02x", enc[0])
	}
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, data) {
		t.Fatal("round trip mismatch")
	}
}

func TestIncompressibleStaysRaw(t *testing.T) {
	c, err := New(3)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	data := make([]byte, 512)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}
	enc, err := c.Encode(data)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != frameRaw {
		t.Fatalf("random data should stay raw, marker 0x%02x", enc[0])
	}
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, data) {
		t.Fatal("round trip mismatch")
	}
}

func TestDisabledCodec(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	data := bytes.Repeat([]byte("x"), 1024)
	enc, err := c.Encode(data)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != frameRaw {
		t.Fatal("disabled codec must write raw frames")
	}
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, data) {
		t.Fatal("round trip mismatch")
	}

	if _, err := c.Decode([]byte{frameZstd, 0x01}); err == nil {
		t.Fatal("disabled codec should refuse zstd frames")
	}
}

func TestDecodeBadInput(t *testing.T) {
	c, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Decode(nil); err == nil {
		t.Fatal("empty frame should fail")
	}
	if _, err := c.Decode([]byte{0x7f, 1, 2}); err == nil {
		t.Fatal("unknown marker should fail")
	}
	if _, err := c.Decode([]byte{frameZstd, 0xde, 0xad}); err == nil {
		t.Fatal("corrupt zstd frame should fail")
	}
}
