package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrObjectNotFound indica que a chave não existe no storage
var ErrObjectNotFound = errors.New("objeto não encontrado no storage")

// ContentTypeXML é o content type usado para os XMLs de NF-e
const ContentTypeXML = "application/xml"

// ObjectStorage armazena os blobs de XML e certificados
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// BuildXMLKey monta o caminho nfe/xml/{empresa}/{cnpj}/{ano}/{mes}/{chave}.xml
func BuildXMLKey(companyID int64, cnpj string, at time.Time, accessKey string) string {
	if cnpj == "" {
		cnpj = "sem_cnpj"
	}
	return fmt.Sprintf("nfe/xml/%d/%s/%04d/%02d/%s.xml", companyID, cnpj, at.Year(), int(at.Month()), accessKey)
}

// SHA256 calcula o hash hexadecimal do conteúdo
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
