package auth

import (
	"crypto/md5"

	"github.com/google/uuid"
)

// OfflineUUID derives the deterministic uuid an offline-mode server assigns
// to username: md5("OfflinePlayer:" + name) with version-3 and RFC 4122
// variant bits.
func OfflineUUID(username string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + username))
	var u uuid.UUID
	copy(u[:], sum[:])
	u[6] = u[6]&0x0F | 0x30 // version 3
	u[8] = u[8]&0x3F | 0x80 // RFC 4122 variant
	return u
}
