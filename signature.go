// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package websub

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

// SignatureHeader is the header a hub uses to carry the HMAC of a content push,
// in the form "<algorithm>=<hex digest>".
const SignatureHeader = "X-Hub-Signature"

var (
	errMalformedSignature   = errors.New("malformed signature header")
	errUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
)

// hashForAlgorithm maps the algorithm half of a signature header onto an HMAC
// hash constructor.  Matching is case-insensitive and tolerates both the wire
// spellings (sha1, sha256, ...) and the dashed forms (SHA-1, SHA-256, ...).
func hashForAlgorithm(algorithm string) func() hash.Hash {
	switch strings.ReplaceAll(strings.ToLower(algorithm), "-", "") {
	case "sha1":
		return sha1.New
	case "sha256":
		return sha256.New
	case "sha384":
		return sha512.New384
	case "sha512":
		return sha512.New
	default:
		return nil
	}
}

// parseSignature splits and validates a signature header, returning the HMAC hash
// constructor for the declared algorithm and the decoded digest.  Any defect in
// the header fails closed with an error; errors here are a forbidden condition,
// distinct from a well-formed digest that simply doesn't match.
func parseSignature(header string) (func() hash.Hash, []byte, error) {
	algorithm, digest, found := strings.Cut(header, "=")
	if !found || len(algorithm) == 0 || len(digest) == 0 {
		return nil, nil, errMalformedSignature
	}

	newHash := hashForAlgorithm(algorithm)
	if newHash == nil {
		return nil, nil, errUnsupportedAlgorithm
	}

	given, err := hex.DecodeString(strings.ToLower(digest))
	if err != nil {
		return nil, nil, errMalformedSignature
	}

	return newHash, given, nil
}

// topicKey derives the per-topic signing key from a process-wide secret: the hex
// encoding of HMAC-SHA1(secret, topic).  The same value is sent to the hub as
// hub.secret during the handshake and used to verify inbound push signatures,
// so the derivation is fixed regardless of which algorithm signs the push body.
func topicKey(secret, topic string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(topic))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyDigest computes HMAC(newHash, key, body) and compares it against the
// given digest in constant time.
func verifyDigest(newHash func() hash.Hash, key string, body, given []byte) bool {
	mac := hmac.New(newHash, []byte(key))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), given)
}
