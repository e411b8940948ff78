// Пакет blobstore — клиент объектного хранилища S3: подписанные URL,
// серверное копирование, загрузка и удаление объектов.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/bigkaa/mediadeck/internal/config"
	"github.com/bigkaa/mediadeck/internal/domain/model"
)

// ErrNotFound — объект отсутствует в хранилище.
var ErrNotFound = errors.New("объект не найден")

// Store — операции с объектами, которые использует оркестратор.
type Store interface {
	// PresignPut возвращает URL для загрузки объекта клиентом.
	PresignPut(ctx context.Context, key, contentType string, acl model.AccessType, ttl time.Duration) (string, error)
	// PresignGet возвращает URL для чтения объекта.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Fetch скачивает объект по подписанному URL в локальный файл dst.
	Fetch(ctx context.Context, key string, ttl time.Duration, dst string) (int64, error)
	// Put загружает содержимое body размером size байт.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Copy копирует объект на стороне хранилища.
	Copy(ctx context.Context, srcKey, dstKey string, acl model.AccessType) error
	// Delete удаляет объект.
	Delete(ctx context.Context, key string) error
	// Exists проверяет наличие объекта.
	Exists(ctx context.Context, key string) (bool, error)
}

// NewClient создаёт S3-клиент: регион, статические ключи (если заданы),
// собственный endpoint и path-style адресация для S3-совместимых хранилищ.
func NewClient(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации AWS: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
		// MinIO и другие S3-совместимые хранилища не принимают новые checksum-заголовки
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}

// Options — параметры S3Store.
type Options struct {
	Bucket string
	// HTTPClient для скачивания по подписанным URL (nil — http.DefaultClient)
	HTTPClient *http.Client
	// Подряд идущих ошибок скачивания до размыкания breaker-а
	BreakerFailures uint32
	// Время в состоянии open до пробного запроса
	BreakerTimeout time.Duration
}

// S3Store — реализация Store поверх aws-sdk-go-v2.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[int64]
	logger    *slog.Logger
}

// NewS3Store создаёт хранилище для bucket-а opts.Bucket.
func NewS3Store(client *s3.Client, opts Options, logger *slog.Logger) *S3Store {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	s := &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    opts.Bucket,
		http:      httpClient,
		logger:    logger.With(slog.String("component", "blobstore")),
	}

	s.breaker = gobreaker.NewCircuitBreaker[int64](gobreaker.Settings{
		Name:    "s3-fetch",
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Отсутствующий объект и отмена запроса — не сбой хранилища
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("Состояние circuit breaker изменилось",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return s
}

func (s *S3Store) PresignPut(ctx context.Context, key, contentType string, acl model.AccessType, ttl time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		ACL:    types.ObjectCannedACL(acl),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	presigned, err := s.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("ошибка подписи URL загрузки: %w", err)
	}
	return presigned.URL, nil
}

func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigned, err := s.presigner.PresignGetObject(ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи URL чтения: %w", err)
	}
	return presigned.URL, nil
}

// Fetch скачивает объект по подписанному URL с коротким TTL.
// При ошибке частично записанный файл удаляется.
func (s *S3Store) Fetch(ctx context.Context, key string, ttl time.Duration, dst string) (int64, error) {
	signed, err := s.PresignGet(ctx, key, ttl)
	if err != nil {
		return 0, err
	}

	n, err := s.breaker.Execute(func() (int64, error) {
		return s.download(ctx, signed, dst)
	})
	if err != nil {
		return 0, fmt.Errorf("скачивание %s: %w", key, err)
	}
	return n, nil
}

func (s *S3Store) download(ctx context.Context, signedURL, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ошибка запроса к хранилищу: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("хранилище вернуло статус %d", resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания файла: %w", err)
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("ошибка записи файла: %w", errors.Join(copyErr, closeErr))
	}
	return n, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("ошибка загрузки объекта %s: %w", key, err)
	}
	s.logger.Debug("Объект загружен", slog.String("key", key), slog.Int64("size", size))
	return nil
}

func (s *S3Store) Copy(ctx context.Context, srcKey, dstKey string, acl model.AccessType) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(s.bucket, srcKey)),
		ACL:        types.ObjectCannedACL(acl),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("копирование %s: %w", srcKey, ErrNotFound)
		}
		return fmt.Errorf("ошибка копирования %s → %s: %w", srcKey, dstKey, err)
	}
	s.logger.Debug("Объект скопирован", slog.String("src", srcKey), slog.String("dst", dstKey))
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("ошибка проверки объекта %s: %w", key, err)
}

// copySource кодирует bucket/key для заголовка x-amz-copy-source.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

// isNotFound распознаёт NotFound (HEAD) и NoSuchKey (GET, Copy).
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// Ready проверяет bucket через HeadBucket для /health/ready.
// Разомкнутый breaker считается неготовностью: скачивание всё равно отклоняется.
func (s *S3Store) Ready(ctx context.Context) error {
	if st := s.breaker.State(); st == gobreaker.StateOpen {
		return fmt.Errorf("circuit breaker %s разомкнут", s.breaker.Name())
	}
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("bucket %s недоступен: %w", s.bucket, err)
	}
	return nil
}
