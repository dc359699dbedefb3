package dbus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"strconv"
)

const protoVersion byte = 1

// Flags represents the possible flags of a D-Bus message.
type Flags byte

const (
	FlagNoReplyExpected Flags = 1 << iota
	FlagNoAutoStart
)

// Type represents the possible types of a D-Bus message.
type Type byte

const (
	TypeMethodCall Type = 1 + iota
	TypeMethodReply
	TypeError
	TypeSignal
	typeMax
)

// HeaderField represents the possible byte codes for the headers
// of a D-Bus message.
type HeaderField byte

const (
	FieldPath HeaderField = 1 + iota
	FieldInterface
	FieldMember
	FieldErrorName
	FieldReplySerial
	FieldDestination
	FieldSender
	FieldSignature
	FieldUnixFds
	fieldMax
)

// An InvalidMessageError describes the reason why a D-Bus message is regarded
// as invalid.
type InvalidMessageError string

func (e InvalidMessageError) Error() string {
	return "invalid message: " + string(e)
}

// A ProtocolError signals a violation of the wire protocol severe enough
// that the connection carrying it must be closed: a malformed fixed
// header or a message whose declared length cannot be trusted. A header
// field of the wrong type is reported as an InvalidMessageError.
type ProtocolError string

func (e ProtocolError) Error() string {
	return "dbus: protocol error: " + string(e)
}

var fieldTypes = map[HeaderField]reflect.Type{
	FieldPath:        objectPathType,
	FieldInterface:   stringType,
	FieldMember:      stringType,
	FieldErrorName:   stringType,
	FieldReplySerial: uint32Type,
	FieldDestination: stringType,
	FieldSender:      stringType,
	FieldSignature:   signatureType,
	FieldUnixFds:     uint32Type,
}

var requiredFields = map[Type][]HeaderField{
	TypeMethodCall:  {FieldPath, FieldMember},
	TypeMethodReply: {FieldReplySerial},
	TypeError:       {FieldErrorName, FieldReplySerial},
	TypeSignal:      {FieldPath, FieldInterface, FieldMember},
}

// forbiddenFields lists, per message Type, the header fields that a
// conforming message of that type must NOT carry: requiredFields alone
// only checks for presence, never absence, so nothing would stop a
// method_call from also carrying a reply_serial.
var forbiddenFields = map[Type][]HeaderField{
	TypeMethodCall:  {FieldReplySerial, FieldErrorName},
	TypeMethodReply: {FieldErrorName, FieldPath, FieldInterface, FieldMember},
	TypeError:       {FieldPath, FieldInterface, FieldMember},
	TypeSignal:      {FieldReplySerial, FieldErrorName},
}

// Message represents a single D-Bus message: the fixed 12-byte header, the
// variable header fields, and the body.
type Message struct {
	// must be binary.BigEndian or binary.LittleEndian
	Order binary.ByteOrder

	Type
	Flags
	Serial  uint32
	Headers map[HeaderField]Variant
	Body    []interface{}
}

type header struct {
	HeaderField
	Variant
}

// DecodeMessage tries to decode a single message from the given reader.
// The byte order is figured out from the first byte. The possibly returned
// error may either be an error of the underlying reader, a ProtocolError for
// a malformed fixed header or declared length, or an InvalidMessageError for
// a structurally sound but semantically invalid message.
func DecodeMessage(rd io.Reader) (message *Message, err error) {
	var order binary.ByteOrder
	var length uint32
	var proto byte
	var headers []header

	b := make([]byte, 1)
	_, err = rd.Read(b)
	if err != nil {
		return
	}
	switch b[0] {
	case 'l':
		order = binary.LittleEndian
	case 'B':
		order = binary.BigEndian
	default:
		return nil, ProtocolError("invalid byte order")
	}

	dec := NewDecoder(rd, order)
	dec.pos = 1

	message = new(Message)
	message.Order = order
	err = dec.DecodeMulti(&message.Type, &message.Flags, &proto, &length,
		&message.Serial, &headers)
	if err != nil {
		return nil, err
	}
	if proto != protoVersion {
		return nil, ProtocolError("unsupported protocol version")
	}
	if length > maxMessageSize {
		return nil, ProtocolError("declared body length exceeds message size limit")
	}

	message.Headers = make(map[HeaderField]Variant)
	for _, v := range headers {
		message.Headers[v.HeaderField] = v.Variant
	}

	dec.align(8)
	if sigVariant, ok := message.Headers[FieldSignature]; ok {
		sig, _ := sigVariant.value.(Signature)
		rvs := sig.Values()
		dec.in = io.LimitReader(dec.in, int64(length))
		if err := dec.DecodeMulti(rvs...); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		message.Body = dereferenceAll(rvs)
	}

	if err = message.IsValid(); err != nil {
		return nil, err
	}

	return
}

// ResolveFds replaces every UnixFDIndex (and []UnixFDIndex) in the message
// body with the real UnixFD the index refers to, using the file descriptors
// a transport received out of band alongside the message. It is a no-op if
// the body carries no unix_fd values.
func (message *Message) ResolveFds(fds []int) error {
	for i, v := range message.Body {
		switch idx := v.(type) {
		case UnixFDIndex:
			if int(idx) >= len(fds) {
				return InvalidMessageError("invalid index for unix fd")
			}
			message.Body[i] = UnixFD(fds[idx])
		case []UnixFDIndex:
			resolved := make([]UnixFD, len(idx))
			for k, j := range idx {
				if int(j) >= len(fds) {
					return InvalidMessageError("invalid index for unix fd")
				}
				resolved[k] = UnixFD(fds[j])
			}
			message.Body[i] = resolved
		}
	}
	return nil
}

// EncodeTo encodes and sends a message to the given writer. If the message is
// not valid or an error occurs when writing, an error is returned.
func (message *Message) EncodeTo(out io.Writer) error {
	_, err := message.EncodeToWithFDs(out)
	return err
}

// CountFds reports how many unix_fd values the message body carries, so a
// transport can decide whether it needs to pass ancillary data at all.
func (message *Message) CountFds() (int, error) {
	n := 0
	for _, v := range message.Body {
		if _, ok := v.(UnixFD); ok {
			n++
		}
	}
	return n, nil
}

// EncodeToWithFDs behaves like EncodeTo, additionally returning the
// unix_fd values collected from the body in the order their wire indices
// were assigned, so a transport can pass the real descriptors out of band.
func (message *Message) EncodeToWithFDs(out io.Writer) ([]int, error) {
	if err := message.IsValid(); err != nil {
		return nil, err
	}

	bodyBuf := new(bytes.Buffer)
	bodyEnc := newEncoder(bodyBuf, message.Order, nil)
	if len(message.Body) != 0 {
		if err := bodyEnc.Encode(message.Body...); err != nil {
			return nil, err
		}
	}
	if bodyBuf.Len() > maxMessageSize {
		return nil, ProtocolError("body exceeds message size limit")
	}

	vs := make([]interface{}, 7)
	switch message.Order {
	case binary.LittleEndian:
		vs[0] = byte('l')
	case binary.BigEndian:
		vs[0] = byte('B')
	}
	vs[1] = message.Type
	vs[2] = message.Flags
	vs[3] = protoVersion
	vs[4] = uint32(bodyBuf.Len())
	vs[5] = message.Serial
	headers := make([]header, 0, len(message.Headers))
	for k, v := range message.Headers {
		headers = append(headers, header{k, v})
	}
	vs[6] = headers
	buf := new(bytes.Buffer)
	enc := newEncoder(buf, message.Order, nil)
	if err := enc.Encode(vs...); err != nil {
		return nil, err
	}
	enc.align(8)
	if bodyBuf.Len() != 0 {
		buf.Write(bodyBuf.Bytes())
	}
	if _, err := buf.WriteTo(out); err != nil {
		return nil, err
	}
	return bodyEnc.fds, nil
}

// IsValid checks whether message is a valid message and returns an
// InvalidMessageError if it is not.
func (message *Message) IsValid() error {
	switch message.Order {
	case binary.LittleEndian, binary.BigEndian:
	default:
		return InvalidMessageError("invalid byte order")
	}
	if message.Flags & ^(FlagNoAutoStart|FlagNoReplyExpected) != 0 {
		return InvalidMessageError("invalid flags")
	}
	if message.Type == 0 || message.Type >= typeMax {
		return InvalidMessageError("invalid message type")
	}
	for k, v := range message.Headers {
		if k == 0 || k >= fieldMax {
			return InvalidMessageError("invalid header")
		}
		if reflect.TypeOf(v.value) != fieldTypes[k] {
			return InvalidMessageError("invalid type of header field")
		}
	}
	for _, v := range requiredFields[message.Type] {
		if _, ok := message.Headers[v]; !ok {
			return InvalidMessageError("missing required header")
		}
	}
	for _, v := range forbiddenFields[message.Type] {
		if _, ok := message.Headers[v]; ok {
			return InvalidMessageError("header field not allowed for this message type")
		}
	}
	if path, ok := message.Headers[FieldPath]; ok {
		if !path.value.(ObjectPath).IsValid() {
			return InvalidMessageError("invalid path")
		}
	}
	if iface, ok := message.Headers[FieldInterface]; ok {
		if !isValidInterface(iface.value.(string)) {
			return InvalidMessageError("invalid interface name")
		}
	}
	if member, ok := message.Headers[FieldMember]; ok {
		if !isValidMember(member.value.(string)) {
			return InvalidMessageError("invalid member name")
		}
	}
	if dest, ok := message.Headers[FieldDestination]; ok {
		if !isValidBusName(dest.value.(string)) {
			return InvalidMessageError("invalid destination bus name")
		}
	}
	if len(message.Body) != 0 {
		if _, ok := message.Headers[FieldSignature]; !ok {
			return InvalidMessageError("missing signature")
		}
	}
	return nil
}

// String returns a string representation of a message similar to the format of
// dbus-monitor.
func (msg *Message) String() string {
	if err := msg.IsValid(); err != nil {
		return "<invalid>"
	}
	s := map[Type]string{
		TypeMethodCall:  "method call",
		TypeMethodReply: "reply",
		TypeError:       "error",
		TypeSignal:      "signal",
	}[msg.Type]
	if v, ok := msg.Headers[FieldSender]; ok {
		s += " from " + v.value.(string)
	}
	if v, ok := msg.Headers[FieldDestination]; ok {
		s += " to " + v.value.(string)
	} else {
		s += " to <null>"
	}
	s += " serial " + strconv.FormatUint(uint64(msg.Serial), 10)
	if v, ok := msg.Headers[FieldPath]; ok {
		s += " path " + string(v.value.(ObjectPath))
	}
	if v, ok := msg.Headers[FieldInterface]; ok {
		s += " interface " + v.value.(string)
	}
	if v, ok := msg.Headers[FieldErrorName]; ok {
		s += " name " + v.value.(string)
	}
	if v, ok := msg.Headers[FieldMember]; ok {
		s += " member " + v.value.(string)
	}
	if len(msg.Body) != 0 {
		s += "\n"
		for i, v := range msg.Body {
			s += "  " + fmt.Sprint(v)
			if i != len(msg.Body)-1 {
				s += "\n"
			}
		}
	}
	return s
}
