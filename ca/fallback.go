package ca

import "strings"

// mismatchSignatures are the transport error texts produced when a CA serves
// plaintext on an endpoint configured with a secure scheme. Matching them is
// the only way to tell this condition apart from an unreachable CA.
var mismatchSignatures = []string{
	"server gave HTTP response to HTTPS client",
	"first record does not look like a TLS handshake",
	"tls: oversized record received",
}

// IsProtocolMismatch reports whether the error carries a TLS-handshake
// version mismatch signature. The one-shot plaintext fallback in the client
// keys off this predicate; any other error propagates unmodified.
func IsProtocolMismatch(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sig := range mismatchSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
