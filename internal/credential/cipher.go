// Package credential はリフレッシュトークンの暗号化保存を提供する。
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/hitoshi/essaybinder/internal/model"
)

const (
	keySize = 32
	ivSize  = 16
	tagSize = 16
)

// ErrIntegrity は暗号文・IV・認証タグの改ざん、または鍵の不一致を表す。
var ErrIntegrity = errors.New("credential: integrity check failed")

// Cipher はAES-256-GCMによる認証付き暗号化を行う。
// IVは呼び出しごとにランダム生成し、認証タグは暗号文と分離して保持する。
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher は32バイト鍵からCipherを生成する。
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("credential: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential: failed to create block cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("credential: failed to create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// ParseKey は16進文字列の鍵をデコードし、Cipherを生成する。
func ParseKey(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("credential: key must be hex encoded: %w", err)
	}
	return NewCipher(key)
}

// Encrypt は平文を暗号化し、16進エンコードした暗号文・IV・認証タグを返す。
func (c *Cipher) Encrypt(plaintext string) (model.SealedToken, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return model.SealedToken{}, fmt.Errorf("credential: failed to generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return model.SealedToken{
		Ciphertext: hex.EncodeToString(ct),
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(tag),
	}, nil
}

// Decrypt は暗号文を復号する。
// 認証タグの検証に失敗した場合、またはエンコードが不正な場合はErrIntegrityを返す。
func (c *Cipher) Decrypt(s model.SealedToken) (string, error) {
	ct, err := hex.DecodeString(s.Ciphertext)
	if err != nil {
		return "", ErrIntegrity
	}
	iv, err := hex.DecodeString(s.IV)
	if err != nil || len(iv) != ivSize {
		return "", ErrIntegrity
	}
	tag, err := hex.DecodeString(s.AuthTag)
	if err != nil || len(tag) != tagSize {
		return "", ErrIntegrity
	}

	buf := make([]byte, 0, len(ct)+len(tag))
	buf = append(buf, ct...)
	buf = append(buf, tag...)

	plain, err := c.aead.Open(nil, iv, buf, nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plain), nil
}
