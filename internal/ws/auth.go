package ws

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/GehirnInc/crypt/md5_crypt"
)

// hashPassword derives the credentials the Webshare login endpoint expects:
// the password is MD5-crypted with the account salt, the crypt result is
// SHA-1 hashed, and a digest of "user:Webshare:hash" authenticates the call.
func hashPassword(username, password, salt string) (passwordHash, digest string, err error) {
	crypter := md5_crypt.New()

	crypted, err := crypter.Generate([]byte(password), []byte("$1$"+salt))
	if err != nil {
		return "", "", fmt.Errorf("failed to crypt password: %w", err)
	}

	sum := sha1.Sum([]byte(crypted))
	passwordHash = hex.EncodeToString(sum[:])

	digestSum := md5.Sum([]byte(username + ":Webshare:" + passwordHash))
	digest = hex.EncodeToString(digestSum[:])

	return passwordHash, digest, nil
}
