package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStorage grava os objetos em um bucket do Google Cloud Storage
type GCSStorage struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

// NewGCSStorage cria o cliente. Sem credentialsJSON usa as credenciais padrão do ambiente (ADC).
func NewGCSStorage(ctx context.Context, bucketName, credentialsJSON string) (*GCSStorage, error) {
	if bucketName == "" {
		return nil, errors.New("bucket do GCS é obrigatório")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar cliente GCS: %w", err)
	}
	return &GCSStorage{client: client, bucket: client.Bucket(bucketName)}, nil
}

// Put grava o objeto, sobrescrevendo se existir
func (s *GCSStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("falha ao gravar objeto %s no GCS: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("falha ao finalizar gravação de %s no GCS: %w", key, err)
	}
	return nil
}

// Get lê o objeto inteiro
func (s *GCSStorage) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("falha ao abrir objeto %s no GCS: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("falha ao ler objeto %s no GCS: %w", key, err)
	}
	return data, nil
}

// Close encerra o cliente
func (s *GCSStorage) Close() error {
	return s.client.Close()
}
