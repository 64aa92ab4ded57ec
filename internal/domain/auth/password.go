package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const passwordSalt = "aihelper_salt"

// HashPassword 返回加盐哈希后的密码
func HashPassword(password string) string {
	hash := sha256.Sum256([]byte(password + passwordSalt))
	return hex.EncodeToString(hash[:])
}

// CheckPassword 校验明文密码与存储的哈希是否匹配
func CheckPassword(password, storedHash string) bool {
	computed := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
