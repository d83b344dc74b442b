// Package archive copies conversation transcripts to S3 before their
// Redis retention window expires, giving the back office a durable
// record of customer interactions.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/luckygas/gasdesk/internal/transcript"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// S3API is the subset of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Record is the archived form of one conversation's transcript.
type Record struct {
	ConversationKey string             `json:"conversationKey"`
	ArchivedAt      time.Time          `json:"archivedAt"`
	Entries         []transcript.Entry `json:"entries"`
}

// Store writes transcript records to a date-partitioned S3 layout. With
// no bucket configured every call is a no-op, so deployments without an
// archive bucket run unchanged.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	tracer   trace.Tracer
	nowFunc  func() time.Time
}

func NewStore(bucket string, client S3API, logger *logging.Logger) *Store {
	return &Store{
		bucket:   bucket,
		s3Client: client,
		logger:   logger,
		tracer:   otel.Tracer("gasdesk.internal.archive"),
		nowFunc:  time.Now,
	}
}

// Enabled reports whether an archive bucket is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

func (s *Store) objectKey(conversationKey string, at time.Time) string {
	return fmt.Sprintf("transcripts/v1/by-date/%04d/%02d/%02d/%s.json",
		at.Year(), at.Month(), at.Day(), conversationKey)
}

// Archive writes one transcript to the bucket. Callers decide when a
// conversation is quiet enough to archive.
func (s *Store) Archive(ctx context.Context, conversationKey string, entries []transcript.Entry) error {
	if !s.Enabled() {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "archive.put")
	defer span.End()

	now := s.nowFunc().UTC()
	record := Record{
		ConversationKey: conversationKey,
		ArchivedAt:      now,
		Entries:         entries,
	}
	data, err := json.Marshal(record)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	key := s.objectKey(conversationKey, now)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	s.logger.Info("transcript archived",
		"conversation_key", conversationKey,
		"object_key", key,
		"entries", len(record.Entries))
	return nil
}

// Fetch reads an archived record back, for support tooling.
func (s *Store) Fetch(ctx context.Context, conversationKey string, date time.Time) (*Record, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("archive: not configured")
	}
	ctx, span := s.tracer.Start(ctx, "archive.get")
	defer span.End()

	key := s.objectKey(conversationKey, date.UTC())
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("archive: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", key, err)
	}
	return &record, nil
}
