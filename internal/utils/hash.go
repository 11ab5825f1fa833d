package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the hex SHA256 of data. Used as the ETag of media
// previews so re-renders of an unchanged slot hit the browser cache.
func ContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ValidateHash checks if a hash string is a valid SHA256 hash.
func ValidateHash(hash string) bool {
	// SHA256 produces 64 character hex strings
	if len(hash) != 64 {
		return false
	}

	_, err := hex.DecodeString(hash)
	return err == nil
}

// TruncateHash returns a truncated version of the hash for display purposes.
// This should NOT be used for lookups, only for logging.
func TruncateHash(hash string, length int) string {
	if len(hash) <= length {
		return hash
	}
	return hash[:length] + "..."
}
