package op

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content fingerprints. The version suffix leaves room
// for an algorithm migration without ambiguity.
const (
	DomainRecord = "caseledger/record/v1"
)

// hashWithDomain computes SHA-256 over domain || 0x00 || data. The null
// separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes the content fingerprint of a record from its
// canonical payload. Two records with identical content produce the same
// fingerprint, which the SQLite room store uses to make timeline appends
// idempotent under ambiguous retries.
//
// The record id is part of the payload, so distinct records never collide
// even when their operands are identical.
func Fingerprint(r Record) (string, error) {
	payload, err := r.CanonicalPayload()
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	data, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainRecord, data), nil
}

// FingerprintPayload computes a fingerprint for an arbitrary canonical
// payload under the given domain. Used by the room store for non-record
// timeline events.
func FingerprintPayload(domain string, payload any) (string, error) {
	data, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprint payload: %w", err)
	}
	return hashWithDomain(domain, data), nil
}
