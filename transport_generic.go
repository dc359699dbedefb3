package dbus

import (
	"errors"
	"io"
)

// genericTransport wraps a plain io.ReadWriteCloser (a tcp.Conn, for
// instance) with no ancillary-data channel, so it can never carry unix_fd
// payloads.
type genericTransport struct {
	io.ReadWriteCloser
}

func (t genericTransport) SendNullByte() error {
	_, err := t.Write([]byte{0})
	return err
}

func (t genericTransport) SupportsUnixFDs() bool {
	return false
}

func (t genericTransport) EnableUnixFDs() {}

func (t genericTransport) ReadMessage() (*Message, error) {
	return DecodeMessage(t)
}

func (t genericTransport) SendMessage(msg *Message) error {
	for _, v := range msg.Body {
		if _, ok := v.(UnixFD); ok {
			return errors.New("dbus: unix fd passing not enabled on this transport")
		}
	}
	return msg.EncodeTo(t)
}
