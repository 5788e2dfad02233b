package data

import (
	"crypto/md5"

	"github.com/google/uuid"
)

// CnecID derives the stable identifier of a CNEC from its name and the name of
// its contingency.
//
// The identifier is the MD5 digest of name+contingency (UTF-8, no separator)
// with the 16 digest bytes used verbatim as a UUID. Version and variant bits
// are not rewritten. Existing caches are keyed by this exact value, so neither
// the hash nor the concatenation order may change.
func CnecID(name, contingency string) string {
	sum := md5.Sum([]byte(name + contingency))
	return uuid.UUID(sum).String()
}
