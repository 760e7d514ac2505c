package history

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	keySuffix = ".log"

	// maxEncodedLen bounds the encoded identity so that Key stays well under
	// the 255-byte file name limit of common filesystems.
	maxEncodedLen = 200

	// hashedPrefixLen is the readable prefix kept in front of the digest of a long identity.
	hashedPrefixLen = 120

	// hashSeparator never appears in an encoded identity ('~' is percent-encoded).
	hashSeparator = '~'
)

// Key maps an identity to a filesystem-safe file name. The mapping is injective:
// ASCII letters, digits, '-' and '_' pass through and every other byte (including
// '.', '%' and '/') is percent-encoded, so distinct identities never share a file.
// An identity whose encoding exceeds maxEncodedLen becomes a truncated encoded prefix,
// '~' and the hex SHA-256 of the full identity.
func Key(identity string) string {
	encoded := encode(identity)
	if len(encoded) <= maxEncodedLen {
		return encoded + keySuffix
	}

	prefix := encoded[:hashedPrefixLen]
	// Do not split a %XX escape.
	if i := strings.LastIndexByte(prefix, '%'); i >= hashedPrefixLen-2 {
		prefix = prefix[:i]
	}

	sum := sha256.Sum256([]byte(identity))
	return prefix + string(hashSeparator) + hex.EncodeToString(sum[:]) + keySuffix
}

func encode(identity string) string {
	const hexDigits = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(identity))

	for i := 0; i < len(identity); i++ {
		c := identity[i]
		if isSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0F])
	}
	return b.String()
}

func isSafe(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '_'
}
