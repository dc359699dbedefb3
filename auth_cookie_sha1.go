package dbus

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"os/user"
)

// AuthCookieSha1 returns an Auth that authenticates using the
// DBUS_COOKIE_SHA1 mechanism: a challenge/response exchange proving
// possession of a shared secret from the local cookie keyring.
func AuthCookieSha1() Auth {
	return authCookieSha1{}
}

type authCookieSha1 struct{}

func (a authCookieSha1) FirstData() ([]byte, []byte, AuthStatus) {
	u, err := user.Current()
	if err != nil {
		return []byte("DBUS_COOKIE_SHA1"), nil, AuthError
	}
	b := make([]byte, 2*len(u.Username))
	hex.Encode(b, []byte(u.Username))
	return []byte("DBUS_COOKIE_SHA1"), b, AuthContinue
}

func (a authCookieSha1) HandleData(data []byte) ([]byte, AuthStatus) {
	challenge := make([]byte, len(data)/2)
	if _, err := hex.Decode(challenge, data); err != nil {
		return nil, AuthError
	}
	parts := bytes.Split(challenge, []byte{' '})
	if len(parts) != 3 {
		return nil, AuthError
	}
	context, id, svchallenge := string(parts[0]), string(parts[1]), parts[2]

	secret, err := findCookie(context, id)
	if err != nil {
		return nil, AuthError
	}

	clchallenge := make([]byte, 16)
	if _, err := rand.Read(clchallenge); err != nil {
		return nil, AuthError
	}
	hexChallenge := make([]byte, hex.EncodedLen(len(clchallenge)))
	hex.Encode(hexChallenge, clchallenge)

	hash := sha1.New()
	hash.Write(bytes.Join([][]byte{svchallenge, hexChallenge, secret}, []byte{':'}))
	hexHash := make([]byte, hex.EncodedLen(hash.Size()))
	hex.Encode(hexHash, hash.Sum(nil))

	resp := append(append(hexChallenge, ' '), hexHash...)
	encoded := make([]byte, hex.EncodedLen(len(resp)))
	hex.Encode(encoded, resp)
	return encoded, AuthOk
}

// cookieSha1Context is the keyring context DBUS_COOKIE_SHA1 mints and reads
// cookies under; the reference implementation hard-codes "org_freedesktop_general".
const cookieSha1Context = "org_freedesktop_general"

// ServerAuthCookieSha1 returns a ServerAuth implementing the server side of
// DBUS_COOKIE_SHA1: mint a cookie, challenge the client, and verify its
// response. Every AUTH mints a fresh cookie; an unexpired cookie already in
// the keyring is not reused.
func ServerAuthCookieSha1() ServerAuth {
	return &serverAuthCookieSha1{}
}

type serverAuthCookieSha1 struct {
	serverChallenge string
	cookie          keyringCookie
}

func (a *serverAuthCookieSha1) Name() string { return "DBUS_COOKIE_SHA1" }

func (a *serverAuthCookieSha1) Supported(tr transport) bool { return true }

func (a *serverAuthCookieSha1) HandleAuth(b []byte, tr transport) ([]byte, ServerAuthStatus) {
	// b is the client's hex-encoded uid/username; the reference
	// implementation doesn't verify it maps to a real local account, only
	// that the challenge/response that follows proves possession of the
	// keyring secret.
	if _, err := hex.DecodeString(string(b)); err != nil {
		return nil, ServerAuthRejected
	}
	cookie, err := mintCookie(cookieSha1Context)
	if err != nil {
		return nil, ServerAuthRejected
	}
	a.cookie = cookie

	challenge := make([]byte, 16)
	if _, err := rand.Read(challenge); err != nil {
		return nil, ServerAuthRejected
	}
	hexChallenge := make([]byte, hex.EncodedLen(len(challenge)))
	hex.Encode(hexChallenge, challenge)
	a.serverChallenge = string(hexChallenge)

	line := []byte(cookieSha1Context + " " + a.cookie.id + " " + a.serverChallenge)
	encoded := make([]byte, hex.EncodedLen(len(line)))
	hex.Encode(encoded, line)
	return encoded, ServerAuthContinue
}

func (a *serverAuthCookieSha1) HandleData(data []byte) ([]byte, ServerAuthStatus) {
	decoded := make([]byte, len(data)/2)
	if _, err := hex.Decode(decoded, data); err != nil {
		return nil, ServerAuthRejected
	}
	parts := bytes.SplitN(decoded, []byte{' '}, 2)
	if len(parts) != 2 {
		return nil, ServerAuthRejected
	}
	clientChallenge, clientHash := parts[0], parts[1]

	hash := sha1.New()
	hash.Write(bytes.Join([][]byte{[]byte(a.serverChallenge), clientChallenge, a.cookie.secret}, []byte{':'}))
	wantHash := make([]byte, hex.EncodedLen(hash.Size()))
	hex.Encode(wantHash, hash.Sum(nil))

	if !bytes.Equal(wantHash, clientHash) {
		return nil, ServerAuthRejected
	}
	return nil, ServerAuthOk
}
