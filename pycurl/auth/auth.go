// Package auth implements the Request Preparer's authentication variants,
// ported from pycurl_session/auth.go's HTTPAUTH dispatch table: Basic,
// Digest, NTLM, and Bearer. Basic and Bearer set the Authorization header
// directly. Digest and NTLM attach nothing, and no challenge-response
// handling exists elsewhere in the module.
package auth

import (
	"encoding/base64"
	"net/http"
)

// Authenticator attaches credentials to an outgoing request, given its
// target URL and mutable header map.
type Authenticator interface {
	Attach(header http.Header, method, rawURL string) error
}

// Basic implements HTTP Basic authentication.
type Basic struct {
	User string
	Pass string
}

// Attach implements Authenticator.
func (b Basic) Attach(header http.Header, method, rawURL string) error {
	token := base64.StdEncoding.EncodeToString([]byte(b.User + ":" + b.Pass))
	header.Set("Authorization", "Basic "+token)
	return nil
}

// Bearer sets Authorization: Bearer <token> directly.
type Bearer struct {
	Token string
}

// Attach implements Authenticator.
func (b Bearer) Attach(header http.Header, method, rawURL string) error {
	header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Digest holds RFC 7616 Digest credentials. Digest needs a challenge round
// trip (a 401 with WWW-Authenticate) before a response can be computed; the
// Session performs no such round trip, so a request carrying a Digest
// authenticator is sent without credentials.
type Digest struct {
	User string
	Pass string
}

// Attach implements Authenticator. It leaves header unchanged; the Session
// calls it at prepare time like any other Authenticator.
func (d Digest) Attach(header http.Header, method, rawURL string) error {
	return nil
}

// NTLM holds Windows NTLM credentials. Like Digest, NTLM needs a
// multi-message handshake that the Session does not perform, so a request
// carrying an NTLM authenticator is sent without credentials.
type NTLM struct {
	User   string
	Pass   string
	Domain string
}

// Attach implements Authenticator; see Digest's doc comment.
func (n NTLM) Attach(header http.Header, method, rawURL string) error {
	return nil
}
