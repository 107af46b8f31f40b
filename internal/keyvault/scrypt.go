package keyvault

import "golang.org/x/crypto/scrypt"

func scryptKey(credential, salt []byte, kdf KDF) ([]byte, error) {
	return scrypt.Key(credential, salt, kdf.N, kdf.R, kdf.P, keyLen)
}
