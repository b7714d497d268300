//go:build darwin && cgo

package objc

import (
	"errors"
	"testing"
)

func TestStringRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"Canon EOS 80D",
		"Nikon Z 6 — 日本語 ✓",
		"Leica Q2 📷",
		"tab\tand\nnewline",
		"embedded\x00nul",
	}
	for _, in := range cases {
		str, err := EncodeString(in)
		if err != nil {
			t.Fatalf("EncodeString(%q): %v", in, err)
		}
		got := DecodeString(str)
		Release(str)
		if got != in {
			t.Errorf("round trip: got %q, want %q", got, in)
		}
	}
}

func TestEncodeStringRejectsInvalidUTF8(t *testing.T) {
	_, err := EncodeString("bad \xff\xfe bytes")
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("err = %v, want ErrInvalidUTF8", err)
	}
}

func TestDecodeNil(t *testing.T) {
	if DecodeString(Nil) != "" {
		t.Error("DecodeString(Nil) should be empty")
	}
	if DecodeError(Nil) != nil {
		t.Error("DecodeError(Nil) should be nil")
	}
	if DecodeArray(Nil) != nil {
		t.Error("DecodeArray(Nil) should be nil")
	}
}

func TestSendToNilIsReported(t *testing.T) {
	err := SendVoid(Nil, "requestOpenSession")
	var ex *Exception
	if !errors.As(err, &ex) {
		t.Fatalf("err = %v, want *Exception", err)
	}
	if ex.Selector != "requestOpenSession" {
		t.Errorf("Selector = %q", ex.Selector)
	}
}

func TestSendOnString(t *testing.T) {
	str, err := EncodeString("héllo")
	if err != nil {
		t.Fatal(err)
	}
	defer Release(str)

	n, err := SendInt(str, "length")
	if err != nil {
		t.Fatalf("SendInt: %v", err)
	}
	if n != 5 {
		t.Errorf("length = %d, want 5", n)
	}
	if !IsKindOf(str, "NSString") {
		t.Error("encoded value should be an NSString")
	}
	if !RespondsTo(str, "UTF8String") {
		t.Error("NSString should respond to UTF8String")
	}
	if err := SendVoid(str, "noSuchSelectorForTesting"); err == nil {
		t.Error("unknown selector should surface an exception")
	}
}
