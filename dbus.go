package dbus

import (
	"reflect"
	"strconv"
	"strings"
)

var (
	byteType        = reflect.TypeOf(byte(0))
	boolType        = reflect.TypeOf(false)
	int16Type       = reflect.TypeOf(int16(0))
	uint16Type      = reflect.TypeOf(uint16(0))
	int32Type       = reflect.TypeOf(int32(0))
	uint32Type      = reflect.TypeOf(uint32(0))
	int64Type       = reflect.TypeOf(int64(0))
	uint64Type      = reflect.TypeOf(uint64(0))
	float64Type     = reflect.TypeOf(float64(0))
	stringType      = reflect.TypeOf("")
	signatureType   = reflect.TypeOf(Signature{""})
	objectPathType  = reflect.TypeOf(ObjectPath(""))
	variantType     = reflect.TypeOf(Variant{Signature{""}, nil})
	interfacesType  = reflect.TypeOf([]interface{}{})
	unixFDType      = reflect.TypeOf(UnixFD(0))
	unixFDIndexType = reflect.TypeOf(UnixFDIndex(0))
)

// An InvalidTypeError signals that a value which cannot be represented in the
// D-Bus wire format was passed to a function.
type InvalidTypeError struct {
	Type reflect.Type
}

func (err InvalidTypeError) Error() string {
	return "dbus: invalid type " + err.Type.String()
}

// A TypeMismatchError signals that a decoded or variant-wrapped value
// disagreed with a caller-supplied destination type: either the lengths of
// a Store call's src and dest didn't match, or an element's runtime type
// couldn't be assigned to the pointer given for it.
type TypeMismatchError struct {
	Reason string
}

func (err TypeMismatchError) Error() string {
	return "dbus: type mismatch: " + err.Reason
}

// Store copies the values contained in src to dest, which must be a slice of
// pointers. It converts slices of interfaces from src to corresponding structs
// in dest. An error is returned if the lengths of src and dest or the types of
// their elements don't match.
func Store(src []interface{}, dest ...interface{}) error {
	if len(src) != len(dest) {
		return TypeMismatchError{Reason: "length mismatch"}
	}

	for i, v := range src {
		if reflect.TypeOf(dest[i]).Elem() == reflect.TypeOf(v) {
			reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
			continue
		}
		vs, ok := v.([]interface{})
		if !ok {
			return TypeMismatchError{Reason: "element " + strconv.Itoa(i) + " is not assignable"}
		}
		retv := reflect.ValueOf(dest[i]).Elem()
		if retv.Kind() != reflect.Struct {
			return TypeMismatchError{Reason: "element " + strconv.Itoa(i) + " is not assignable"}
		}
		t := retv.Type()
		ndest := make([]interface{}, 0, retv.NumField())
		for i := 0; i < retv.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath == "" && field.Tag.Get("dbus") != "-" {
				ndest = append(ndest, retv.Field(i).Addr().Interface())
			}
		}
		if len(vs) != len(ndest) {
			return TypeMismatchError{Reason: "struct field count mismatch"}
		}
		if err := Store(vs, ndest...); err != nil {
			return TypeMismatchError{Reason: "nested struct: " + err.Error()}
		}
	}
	return nil
}

// An ObjectPath is an object path as defined by the D-Bus spec.
type ObjectPath string

// IsValid returns whether the object path matches the grammar
// "(/[A-Za-z0-9_]+)+" or the literal "/".
func (o ObjectPath) IsValid() bool {
	s := string(o)
	if len(s) == 0 || s[0] != '/' {
		return false
	}
	if s == "/" {
		return true
	}
	if s[len(s)-1] == '/' {
		return false
	}
	for _, v := range strings.Split(s[1:], "/") {
		if len(v) == 0 {
			return false
		}
		for _, c := range v {
			if !isPathChar(c) {
				return false
			}
		}
	}
	return true
}

func isPathChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') || c == '_'
}

// A UnixFD is a Unix file descriptor sent over the wire. The wire carries an
// index into the transport's ancillary-data fd array (UnixFDIndex); UnixFD is
// the resolved, local value.
type UnixFD int32

// A UnixFDIndex is the wire representation of a Unix file descriptor.
type UnixFDIndex uint32

// alignment returns the natural alignment, in bytes, of values of type t:
// 1 for byte/signature/variant, 2 for int16/uint16, 4 for
// int32/uint32/bool/string-length/array-length/unix_fd/object_path-length, 8
// for int64/uint64/double/struct/dict_entry.
func alignment(t reflect.Type) int {
	switch t {
	case variantType:
		return 1
	case objectPathType:
		return 4
	case signatureType:
		return 1
	}
	switch t.Kind() {
	case reflect.Uint8:
		return 1
	case reflect.Uint16, reflect.Int16:
		return 2
	case reflect.Bool, reflect.Uint32, reflect.Int32, reflect.String, reflect.Array, reflect.Slice, reflect.Map:
		return 4
	case reflect.Uint64, reflect.Int64, reflect.Float64, reflect.Struct:
		return 8
	case reflect.Ptr:
		return alignment(t.Elem())
	}
	return 1
}

// isKeyType returns whether t is a valid basic type for a dict_entry key.
func isKeyType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Int16, reflect.Int32, reflect.Int64, reflect.Float64,
		reflect.String:
		return true
	}
	return false
}

// isValidInterface returns whether s is a valid D-Bus interface name: at
// least two dot-separated segments, each matching [A-Za-z_][A-Za-z0-9_]*,
// total length <= 255.
func isValidInterface(s string) bool {
	if len(s) == 0 || len(s) > 255 || s[0] == '.' {
		return false
	}
	elem := strings.Split(s, ".")
	if len(elem) < 2 {
		return false
	}
	for _, v := range elem {
		if !isValidMember(v) {
			return false
		}
	}
	return true
}

// isValidMember returns whether s is a valid single member/segment name.
func isValidMember(s string) bool {
	if len(s) == 0 || len(s) > 255 {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for _, c := range s {
		if !isMemberChar(c) {
			return false
		}
	}
	return true
}

// isValidBusName returns whether s is a valid bus name: a well-known name
// (>= two dot-separated segments of [A-Za-z_-][A-Za-z0-9_-]*) or a unique
// name beginning with ':'.
func isValidBusName(s string) bool {
	if len(s) == 0 || len(s) > 255 {
		return false
	}
	if s[0] == ':' {
		return len(s) > 1
	}
	elem := strings.Split(s, ".")
	if len(elem) < 2 {
		return false
	}
	for _, v := range elem {
		if len(v) == 0 {
			return false
		}
		if v[0] >= '0' && v[0] <= '9' {
			return false
		}
		for _, c := range v {
			if !isMemberChar(c) && c != '-' {
				return false
			}
		}
	}
	return true
}

func isMemberChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') || c == '_'
}
