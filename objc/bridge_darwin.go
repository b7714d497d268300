//go:build darwin && cgo

package objc

/*
#cgo CFLAGS: -x objective-c -fobjc-exceptions
#cgo LDFLAGS: -framework Foundation
#include "native/objc.m"
#include <stdlib.h>
*/
import "C"
import (
	"errors"
	"unicode/utf8"
	"unsafe"
)

// ErrInvalidUTF8 is returned by EncodeString for text that NSString cannot hold.
var ErrInvalidUTF8 = errors.New("objc: string is not valid UTF-8")

// EncodeString returns a new NSString (+1 retained) holding s. The caller
// owns the result and must pass it to Release.
func EncodeString(s string) (ID, error) {
	if !utf8.ValidString(s) {
		return Nil, ErrInvalidUTF8
	}
	var buf unsafe.Pointer
	if len(s) > 0 {
		buf = C.CBytes([]byte(s))
		defer C.free(buf)
	}
	str := C.objcbridge_string_new((*C.char)(buf), C.size_t(len(s)))
	if str == nil {
		return Nil, ErrInvalidUTF8
	}
	return FromPointer(str), nil
}

// DecodeString copies an NSString into Go memory. Nil or a receiver that is
// not an NSString decodes to "".
func DecodeString(str ID) string {
	if str.IsNil() {
		return ""
	}
	var n C.size_t
	p := C.objcbridge_string_bytes(str.Pointer(), &n)
	if p == nil {
		return ""
	}
	defer C.free(p)
	return string(C.GoBytes(p, C.int(n)))
}

// DecodeStrings decodes an NSArray<NSString *>.
func DecodeStrings(arr ID) []string {
	items := DecodeArray(arr)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, DecodeString(it))
	}
	return out
}

// DecodeArray returns the elements of an NSArray. The elements are not
// retained; they live as long as the array's owner keeps them.
func DecodeArray(arr ID) []ID {
	if arr.IsNil() {
		return nil
	}
	n := uint64(C.objcbridge_array_count(arr.Pointer()))
	out := make([]ID, 0, n)
	for i := uint64(0); i < n; i++ {
		if item := C.objcbridge_array_at(arr.Pointer(), C.ulong(i)); item != nil {
			out = append(out, FromPointer(item))
		}
	}
	return out
}

// DecodeError copies an NSError. It returns nil for a nil reference, which is
// how the framework signals success in its completion callbacks.
func DecodeError(err ID) error {
	if err.IsNil() {
		return nil
	}
	var domain, desc, reason *C.char
	var code C.long
	if C.objcbridge_error_decode(err.Pointer(), &domain, &code, &desc, &reason) == 0 {
		return &Error{Domain: "objc", Code: -1, Description: "callback error argument is not an NSError"}
	}
	defer C.free(unsafe.Pointer(domain))
	defer C.free(unsafe.Pointer(desc))
	defer C.free(unsafe.Pointer(reason))
	return &Error{
		Domain:        C.GoString(domain),
		Code:          int(code),
		Description:   C.GoString(desc),
		FailureReason: C.GoString(reason),
	}
}

// IsKindOf reports whether obj is an instance of the named class or a subclass.
func IsKindOf(obj ID, className string) bool {
	cname := C.CString(className)
	defer C.free(unsafe.Pointer(cname))
	return C.objcbridge_is_kind_of(obj.Pointer(), cname) != 0
}

// Release sends -release. Nil is ignored.
func Release(obj ID) { C.objcbridge_release(obj.Pointer()) }

// RespondsTo reports whether obj implements sel.
func RespondsTo(obj ID, sel string) bool {
	csel := C.CString(sel)
	defer C.free(unsafe.Pointer(csel))
	return C.objcbridge_responds(obj.Pointer(), csel) != 0
}

func takeException(ex *C.objcbridge_exception, sel string) error {
	defer C.free(unsafe.Pointer(ex.name))
	defer C.free(unsafe.Pointer(ex.reason))
	return &Exception{Name: C.GoString(ex.name), Reason: C.GoString(ex.reason), Selector: sel}
}

func nilReceiver(sel string) error {
	return &Exception{Name: "NilReceiver", Reason: "message sent to nil", Selector: sel}
}

// SendVoid sends a no-argument message whose return value is void.
func SendVoid(obj ID, sel string) error {
	if obj.IsNil() {
		return nilReceiver(sel)
	}
	csel := C.CString(sel)
	defer C.free(unsafe.Pointer(csel))
	var ex C.objcbridge_exception
	if C.objcbridge_send_void(obj.Pointer(), csel, &ex) == 0 {
		return takeException(&ex, sel)
	}
	return nil
}

// SendVoidID sends a one-object-argument message whose return value is void
// (setters such as -setDelegate:).
func SendVoidID(obj ID, sel string, arg ID) error {
	if obj.IsNil() {
		return nilReceiver(sel)
	}
	csel := C.CString(sel)
	defer C.free(unsafe.Pointer(csel))
	var ex C.objcbridge_exception
	if C.objcbridge_send_void_id(obj.Pointer(), csel, arg.Pointer(), &ex) == 0 {
		return takeException(&ex, sel)
	}
	return nil
}

// SendID sends a no-argument message returning an object.
func SendID(obj ID, sel string) (ID, error) {
	if obj.IsNil() {
		return Nil, nilReceiver(sel)
	}
	csel := C.CString(sel)
	defer C.free(unsafe.Pointer(csel))
	var ex C.objcbridge_exception
	res := C.objcbridge_send_id(obj.Pointer(), csel, &ex)
	if ex.name != nil || ex.reason != nil {
		return Nil, takeException(&ex, sel)
	}
	return FromPointer(res), nil
}

// SendBool sends a no-argument message returning BOOL.
func SendBool(obj ID, sel string) (bool, error) {
	if obj.IsNil() {
		return false, nilReceiver(sel)
	}
	csel := C.CString(sel)
	defer C.free(unsafe.Pointer(csel))
	var ex C.objcbridge_exception
	res := C.objcbridge_send_bool(obj.Pointer(), csel, &ex)
	if ex.name != nil || ex.reason != nil {
		return false, takeException(&ex, sel)
	}
	return res != 0, nil
}

// SendInt sends a no-argument message returning NSInteger or NSUInteger.
func SendInt(obj ID, sel string) (int, error) {
	if obj.IsNil() {
		return 0, nilReceiver(sel)
	}
	csel := C.CString(sel)
	defer C.free(unsafe.Pointer(csel))
	var ex C.objcbridge_exception
	res := C.objcbridge_send_long(obj.Pointer(), csel, &ex)
	if ex.name != nil || ex.reason != nil {
		return 0, takeException(&ex, sel)
	}
	return int(res), nil
}

// SendDouble sends a no-argument message returning double (NSTimeInterval).
func SendDouble(obj ID, sel string) (float64, error) {
	if obj.IsNil() {
		return 0, nilReceiver(sel)
	}
	csel := C.CString(sel)
	defer C.free(unsafe.Pointer(csel))
	var ex C.objcbridge_exception
	res := C.objcbridge_send_double(obj.Pointer(), csel, &ex)
	if ex.name != nil || ex.reason != nil {
		return 0, takeException(&ex, sel)
	}
	return float64(res), nil
}
