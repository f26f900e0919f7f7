package encryption

import (
	"crypto/hkdf"
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// info binds derived keys to this use so the same identity never yields the
// same key for another purpose.
const info = "brocoli profile secret v1"

var salt = []byte("brocoli")

// DeriveKey derives the obscuring key for identity using HKDF-SHA256.
func DeriveKey(identity string) ([]byte, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity must not be empty")
	}
	key, err := hkdf.Key(sha256.New, []byte(identity), salt, info, KeySize)
	if err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return key, nil
}

// UserIdentity returns the numeric user id. Where the platform has none
// (Windows) a stable pseudo id is computed from the login name.
func UserIdentity() string {
	if uid := os.Getuid(); uid >= 0 {
		return strconv.Itoa(uid)
	}
	login := os.Getenv("USERNAME")
	if u, err := user.Current(); err == nil && u.Username != "" {
		login = u.Username
	}
	sum := md5.Sum([]byte(login))
	return strconv.FormatUint(binary.BigEndian.Uint64(sum[:8])%10000, 10)
}

// ForUser returns an Obscurer keyed on the current user.
func ForUser() (*Obscurer, error) {
	key, err := DeriveKey(UserIdentity())
	if err != nil {
		return nil, err
	}
	return NewObscurer(key)
}
