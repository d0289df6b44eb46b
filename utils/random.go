package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

func GenerateCode(n int) (string, error) {
	// Make a slice of nBytes random bytes.
	byt := make([]byte, n)

	// Read into the slice.
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	// Return the hexadecimal string.
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// NewAttemptID identifies one scan attempt across logs, metrics and the audit trail.
func NewAttemptID() string {
	code, err := GenerateCode(8)
	if err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return "scan_" + strings.ToLower(code)
}
