package dbus

import (
	"reflect"
	"strings"
)

var sigToType = map[byte]reflect.Type{
	'y': byteType,
	'b': boolType,
	'n': int16Type,
	'q': uint16Type,
	'i': int32Type,
	'u': uint32Type,
	'x': int64Type,
	't': uint64Type,
	'd': float64Type,
	's': stringType,
	'g': signatureType,
	'o': objectPathType,
	'v': variantType,
	'h': unixFDIndexType,
}

// recursion limits: struct/array nesting bounded by 32 each, 64 overall.
const (
	maxStructDepth = 32
	maxArrayDepth  = 32
	maxTotalDepth  = 64
	maxSignature   = 255
)

// Signature represents a correct type signature as specified by the D-Bus
// specification. The zero value represents the empty signature, "".
type Signature struct {
	str string
}

// SignatureOf returns the concatenation of all the signatures of the given
// values. It panics if one of them is not representable in D-Bus.
func SignatureOf(vs ...interface{}) Signature {
	var s string
	for _, v := range vs {
		s += getSignature(reflect.TypeOf(v))
	}
	return Signature{s}
}

// SignatureOfType returns the signature of the given type. It panics if the
// type is not representable in D-Bus.
func SignatureOfType(t reflect.Type) Signature {
	return Signature{getSignature(t)}
}

// getSignature returns the signature of the given type and panics on unknown types.
func getSignature(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Uint8:
		return "y"
	case reflect.Bool:
		return "b"
	case reflect.Int16:
		return "n"
	case reflect.Uint16:
		return "q"
	case reflect.Int32:
		if t == unixFDType {
			return "h"
		}
		return "i"
	case reflect.Uint32:
		if t == unixFDIndexType {
			return "h"
		}
		return "u"
	case reflect.Int64:
		return "x"
	case reflect.Uint64:
		return "t"
	case reflect.Float64:
		return "d"
	case reflect.Ptr:
		return getSignature(t.Elem())
	case reflect.String:
		if t == objectPathType {
			return "o"
		}
		return "s"
	case reflect.Struct:
		if t == variantType {
			return "v"
		} else if t == signatureType {
			return "g"
		}
		var s string
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath == "" && field.Tag.Get("dbus") != "-" {
				s += getSignature(t.Field(i).Type)
			}
		}
		return "(" + s + ")"
	case reflect.Array, reflect.Slice:
		return "a" + getSignature(t.Elem())
	case reflect.Map:
		if !isKeyType(t.Key()) {
			panic(InvalidTypeError{t})
		}
		return "a{" + getSignature(t.Key()) + getSignature(t.Elem()) + "}"
	}
	panic(InvalidTypeError{t})
}

// ParseSignature returns the signature represented by this string, or a
// SignatureError if the string is not a valid signature.
func ParseSignature(s string) (sig Signature, err error) {
	if len(s) == 0 {
		return
	}
	if len(s) > maxSignature {
		return Signature{""}, SignatureError{s, "too long"}
	}
	sig.str = s
	d := depth{}
	for err == nil && len(s) != 0 {
		err, s = validSingle(s, d)
	}
	if err != nil {
		sig = Signature{""}
	}
	return
}

// ParseSignatureMust behaves like ParseSignature, except that it panics if s
// is not valid.
func ParseSignatureMust(s string) Signature {
	sig, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return sig
}

// Empty returns whether the signature is the empty signature.
func (s Signature) Empty() bool {
	return s.str == ""
}

// Single returns whether the signature represents a single, complete type.
func (s Signature) Single() bool {
	err, r := validSingle(s.str, depth{})
	return err == nil && r == ""
}

// String returns the signature's string representation.
func (s Signature) String() string {
	return s.str
}

// Values returns a slice of pointers to values that match the given signature.
func (s Signature) Values() []interface{} {
	slice := make([]interface{}, 0)
	str := s.str
	for str != "" {
		slice = append(slice, reflect.New(value(str)).Interface())
		_, str = validSingle(str, depth{})
	}
	return slice
}

// A SignatureError indicates that a signature passed to a function or received
// on a connection is not a valid signature.
type SignatureError struct {
	Sig    string
	Reason string
}

func (err SignatureError) Error() string {
	return "dbus: invalid signature: '" + err.Sig + "' (" + err.Reason + ")"
}

// depth tracks the three independent recursion counters that are bounded:
// struct nesting, array nesting, and their sum.
type depth struct {
	structs int
	arrays  int
}

func (d depth) total() int { return d.structs + d.arrays }

func (d depth) enterStruct() (depth, error) {
	d.structs++
	if d.structs > maxStructDepth || d.total() > maxTotalDepth {
		return d, SignatureError{Reason: "struct nesting too deep"}
	}
	return d, nil
}

func (d depth) enterArray() (depth, error) {
	d.arrays++
	if d.arrays > maxArrayDepth || d.total() > maxTotalDepth {
		return d, SignatureError{Reason: "array nesting too deep"}
	}
	return d, nil
}

// validSingle reads a single complete type from the front of s. On success
// err is nil and rem is the remaining unparsed suffix; on failure err is a
// SignatureError and rem is "".
func validSingle(s string, d depth) (err error, rem string) {
	if s == "" {
		return SignatureError{Sig: s, Reason: "empty signature"}, ""
	}
	switch s[0] {
	case 'y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'g', 'o', 'v', 'h':
		return nil, s[1:]
	case 'a':
		nd, derr := d.enterArray()
		if derr != nil {
			return derr, ""
		}
		if len(s) > 1 && s[1] == '{' {
			i := matchingParen(s[1:], '{', '}')
			if i == -1 {
				return SignatureError{Sig: s, Reason: "unmatched '{'"}, ""
			}
			i++ // index into s rather than s[1:]
			rem = s[i+1:]
			inner := s[2:i]
			if inner == "" {
				return SignatureError{Sig: s, Reason: "empty dict entry"}, ""
			}
			if err, _ = validSingle(inner[:1], nd); err != nil {
				return err, ""
			}
			if !isBasicCode(inner[0]) {
				return SignatureError{Sig: s, Reason: "dict entry key must be basic"}, ""
			}
			err, nr := validSingle(inner[1:], nd)
			if err != nil {
				return err, ""
			}
			if nr != "" {
				return SignatureError{Sig: s, Reason: "too many types in dict entry"}, ""
			}
			return nil, rem
		}
		if len(s) > 1 && s[1] == ')' {
			return SignatureError{Sig: s, Reason: "array of dict-entry-close"}, ""
		}
		return validSingle(s[1:], nd)
	case '(':
		nd, derr := d.enterStruct()
		if derr != nil {
			return derr, ""
		}
		i := matchingParen(s, '(', ')')
		if i == -1 {
			return SignatureError{Sig: s, Reason: "unmatched ')'"}, ""
		}
		rem = s[i+1:]
		inner := s[1:i]
		if inner == "" {
			return SignatureError{Sig: s, Reason: "struct must have at least one field"}, ""
		}
		for err == nil && inner != "" {
			err, inner = validSingle(inner, nd)
		}
		if err != nil {
			rem = ""
		}
		return
	case '{', ')':
		return SignatureError{Sig: s, Reason: "dict entry outside array"}, ""
	}
	return SignatureError{Sig: s, Reason: "invalid type character"}, ""
}

func isBasicCode(c byte) bool {
	switch c {
	case 'y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'g', 'o', 'h':
		return true
	}
	return false
}

// matchingParen finds the index of the ')' matching the '(' at s[0],
// accounting for nesting.
func matchingParen(s string, open, close byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// value returns the type of the given signature. It ignores any left over
// characters and panics if s doesn't start with a valid type signature.
func value(s string) (t reflect.Type) {
	err, _ := validSingle(s, depth{})
	if err != nil {
		panic(err)
	}

	if t, ok := sigToType[s[0]]; ok {
		return t
	}
	switch s[0] {
	case 'a':
		if s[1] == '{' {
			i := strings.LastIndex(s, "}")
			t = reflect.MapOf(sigToType[s[2]], value(s[3:i]))
		} else {
			t = reflect.SliceOf(value(s[1:]))
		}
	case '(':
		t = interfacesType
	}
	return
}
