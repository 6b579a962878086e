package ca

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"math/big"

	"github.com/pkg/errors"
)

type ecdsaSignature struct {
	R, S *big.Int
}

// authToken builds the CA registration authorization token: the caller's
// certificate and an ECDSA signature over base64(body).base64(cert), both
// base64 encoded and dot joined. The CA rejects high-S signatures.
func authToken(certPEM, keyPEM string, body []byte) (string, error) {
	key, err := parseECPrivateKey(keyPEM)
	if err != nil {
		return "", err
	}

	b64Cert := base64.StdEncoding.EncodeToString([]byte(certPEM))
	b64Body := base64.StdEncoding.EncodeToString(body)
	digest := sha256.Sum256([]byte(b64Body + "." + b64Cert))

	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return "", errors.Wrap(err, "failed to sign auth token")
	}

	halfOrder := new(big.Int).Rsh(key.Params().N, 1)
	if s.Cmp(halfOrder) == 1 {
		s.Sub(key.Params().N, s)
	}

	sig, err := asn1.Marshal(ecdsaSignature{R: r, S: s})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode auth token signature")
	}

	return b64Cert + "." + base64.StdEncoding.EncodeToString(sig), nil
}

func parseECPrivateKey(keyPEM string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, errors.New("failed to decode private key PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not an ECDSA key")
		}
		return ecKey, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key format")
}
