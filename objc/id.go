// Package objc is the Go side of the Objective-C object boundary.
//
// An ID is an opaque reference to a native object (device, browser, delegate,
// error, file item). Ownership and reference counting stay with the native
// runtime: holding an ID does not keep the object alive, and an ID handed to
// Go by a callback is only valid for as long as the framework says it is.
//
// The cgo half of this package (darwin only) provides the string bridge,
// NSError decoding and a handful of typed objc_msgSend helpers. Those helpers
// are an escape hatch for binding packages; every call site names the native
// receiver type it expects.
package objc

import (
	"fmt"
	"unsafe"
)

// ID is an opaque native object reference.
type ID uintptr

// Nil is the null object reference.
const Nil ID = 0

// IsNil reports whether the reference is null.
func (id ID) IsNil() bool { return id == Nil }

func (id ID) String() string {
	if id == Nil {
		return "nil"
	}
	return fmt.Sprintf("0x%x", uintptr(id))
}

// Pointer returns the reference as a C pointer for cgo call sites. The value
// is an address in the Objective-C heap, never a Go pointer, so the GC has
// nothing to track.
func (id ID) Pointer() unsafe.Pointer { return unsafe.Pointer(uintptr(id)) }

// FromPointer wraps a pointer received from C.
func FromPointer(p unsafe.Pointer) ID { return ID(uintptr(p)) }
