package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const nonceSize = 12

var (
	ErrInvalidMasterKey = errors.New("chave master inválida: deve ter 32 bytes em base64")
	ErrInvalidPayload   = errors.New("texto criptografado inválido")
)

// Service criptografa e descriptografa senhas de certificados com AES-256-GCM.
// O formato armazenado é base64(nonce || ciphertext || tag).
type Service struct {
	aead cipher.AEAD
}

// NewService cria o serviço a partir da chave master em base64
func NewService(masterKey string) (*Service, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidMasterKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar cifra AES: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar GCM: %w", err)
	}
	return &Service{aead: aead}, nil
}

// Encrypt criptografa o texto
func (s *Service) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("falha ao gerar nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt descriptografa o texto produzido por Encrypt
func (s *Service) Decrypt(encrypted string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil || len(raw) <= nonceSize {
		return "", ErrInvalidPayload
	}
	plain, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return string(plain), nil
}

// GenerateMasterKey gera uma nova chave master em base64
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
