package objc

import (
	"errors"
	"fmt"
	"testing"
)

func TestIDIsNil(t *testing.T) {
	if !Nil.IsNil() {
		t.Fatal("Nil should be nil")
	}
	if ID(0x1000).IsNil() {
		t.Fatal("non-zero ID reported nil")
	}
	if got := ID(0x1000).String(); got != "0x1000" {
		t.Errorf("String() = %q", got)
	}
	if got := Nil.String(); got != "nil" {
		t.Errorf("Nil.String() = %q", got)
	}
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Domain: "com.apple.ImageCaptureCore", Code: -9923, Description: "The device is busy."}
	want := "com.apple.ImageCaptureCore (-9923): The device is busy."
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := fmt.Errorf("open session: %w", err)
	var decoded *Error
	if !errors.As(wrapped, &decoded) {
		t.Fatal("errors.As should find *objc.Error")
	}
	if decoded.Code != -9923 {
		t.Errorf("Code = %d", decoded.Code)
	}
}

func TestExceptionFormatting(t *testing.T) {
	ex := &Exception{Name: "NSInvalidArgumentException", Reason: "unrecognized selector", Selector: "requestTakePicture"}
	if got := ex.Error(); got != "objc exception NSInvalidArgumentException in -requestTakePicture: unrecognized selector" {
		t.Errorf("Error() = %q", got)
	}
}
