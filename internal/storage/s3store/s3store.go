// Пакет s3store — хранение исходных документов схем в S3 / MinIO.
package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/bigkaa/goartstore/schema-module/internal/storage"
)

// Config — параметры подключения к бакету.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // пусто — AWS S3
	PathStyle bool
	// HTTPClient — клиент с кастомным CA (опционально)
	HTTPClient *http.Client
	// Options — дополнительные опции клиента (тесты)
	Options []func(*s3.Options)
	// LoadOptions — дополнительные опции загрузки AWS конфигурации (тесты)
	LoadOptions []func(*config.LoadOptions) error
}

// Store — документы как объекты одного бакета, ключ объекта совпадает со ссылкой.
type Store struct {
	client *s3.Client
	bucket string
	now    func() time.Time
}

// New создаёт S3 хранилище. Учётные данные берутся из стандартной
// цепочки AWS (AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY и т.д.).
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("не задан S3 бакет")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := append([]func(*config.LoadOptions) error{config.WithRegion(region)}, cfg.LoadOptions...)
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации AWS: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
		for _, fn := range cfg.Options {
			fn(o)
		}
	})

	return &Store{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

// Save загружает документ объектом {folder}/{сгенерированное имя}.
// Документы схем небольшие (ограничены SM_MAX_SCHEMA_SIZE), поэтому
// тело читается в память целиком: так известна длина и SHA-256 до загрузки.
func (s *Store) Save(ctx context.Context, r io.Reader, folder, filename, owner string) (*storage.SaveResult, error) {
	key, err := storage.CleanRef(storage.JoinRef(folder, storage.GenerateName(filename, owner, s.now())))
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения данных: %w", err)
	}
	sum := sha256.Sum256(data)

	// Имя содержит uuid, но перезапись существующего объекта всё равно запрещена.
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key}); err == nil {
		return nil, fmt.Errorf("объект %s уже существует", key)
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("ошибка проверки объекта %s: %w", key, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки объекта %s: %w", key, err)
	}

	return &storage.SaveResult{
		Ref:      key,
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

// Open возвращает тело объекта. Вызывающий код обязан закрыть ReadCloser.
func (s *Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := storage.CleanRef(ref)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("ошибка получения объекта %s: %w", ref, err)
	}
	return out.Body, nil
}

// CheckReady проверяет доступность бакета (для readiness probe).
func (s *Store) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket}); err != nil {
		return "fail", fmt.Sprintf("S3 бакет %s недоступен: %v", s.bucket, err)
	}
	return "ok", fmt.Sprintf("S3 бакет %s доступен", s.bucket)
}

// isNotFound распознаёт отсутствие объекта: типизированные ошибки
// GetObject / HeadObject, код NotFound без тела ответа и HTTP 404.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
