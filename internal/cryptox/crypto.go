// Package cryptox derives content addresses for evidence files.
package cryptox

import (
	"encoding/hex"
	"path"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ContentAddress returns the hex BLAKE2b-256 digest of data. Identical bytes
// always map to the same address, so re-uploading after a retry overwrites
// the same object.
func ContentAddress(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ObjectKey builds the remote object key for a file: the content address
// sharded by its first two characters, keeping the original extension.
//
//	ObjectKey("ab12...", "photo.JPG") == "ab/ab12....jpg"
func ObjectKey(address, name string) string {
	ext := strings.ToLower(path.Ext(name))
	if len(address) < 2 {
		return address + ext
	}
	return address[:2] + "/" + address + ext
}
