package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2id 默认参数：64MB 内存、3 轮、4 并行
const (
	argonMemoryKiB  = 64 * 1024
	argonIterations = 3
	argonLanes      = 4
	argonSaltLen    = 16
	argonKeyLen     = 32
)

var errPasswordHashMalformed = errors.New("password hash malformed")

// HashPassword 生成密码哈希（argon2id，PHC 编码）
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, argonIterations, argonMemoryKiB, argonLanes, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemoryKiB,
		argonIterations,
		argonLanes,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword 校验密码与哈希是否匹配
func VerifyPassword(encodedHash, password string) bool {
	memory, iterations, lanes, salt, key, err := decodePasswordHash(encodedHash)
	if err != nil {
		return false
	}
	derived := argon2.IDKey([]byte(password), salt, iterations, memory, lanes, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1
}

func decodePasswordHash(encodedHash string) (memory uint32, iterations uint32, lanes uint8, salt, key []byte, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		err = errPasswordHashMalformed
		return
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		err = errPasswordHashMalformed
		return
	}
	if version != argon2.Version {
		err = errPasswordHashMalformed
		return
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &lanes); err != nil {
		err = errPasswordHashMalformed
		return
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		err = errPasswordHashMalformed
		return
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		err = errPasswordHashMalformed
		return
	}
	return
}
