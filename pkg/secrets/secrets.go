package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Salt is fixed so that key derivation is deterministic across
// process restarts; the passphrase itself is the secret here.
var pbkdf2Salt = []byte("verify-api.settings.v1")

const pbkdf2Iterations = 10000

// Box шифрует и дешифрует строковые секреты алгоритмом AES-256-GCM.
// Формат хранения: hex(nonce || ciphertext || tag).
type Box struct {
	key []byte
}

// NewBox создает Box из ключа шифрования. Принимает либо hex-строку
// 32-байтового ключа (64 символа), либо произвольную парольную фразу,
// из которой ключ выводится через PBKDF2-SHA256.
func NewBox(rawKey string) (*Box, error) {
	if rawKey == "" {
		return nil, errors.New("encryption key is required")
	}

	if len(rawKey) == 64 {
		if keyBytes, err := hex.DecodeString(rawKey); err == nil {
			return &Box{key: keyBytes}, nil
		}
		// Не hex — трактуем как парольную фразу ниже.
	}

	key := pbkdf2.Key([]byte(rawKey), pbkdf2Salt, pbkdf2Iterations, 32, sha256.New)
	return &Box{key: key}, nil
}

// Encrypt шифрует значение. Пустая строка проходит без изменений,
// чтобы необязательные поля настроек оставались пустыми в БД.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	// Храним nonce вместе с ciphertext: nonce || ciphertext
	return hex.EncodeToString(append(nonce, ciphertext...)), nil
}

// Decrypt дешифрует значение, созданное Encrypt. Любая проблема с
// ключом или шифротекстом — жесткая ошибка, без отката к plaintext.
func (b *Box) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	data, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext from hex: %w", err)
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher for decryption: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM for decryption: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("encrypted data is too short to contain nonce")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value with GCM: %w", err)
	}

	return string(plaintext), nil
}
