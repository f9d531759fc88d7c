package persistence

import (
	"ParaLedger/internal/core"
	"ParaLedger/internal/observability"
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ObjectPutter is the part of *s3.Client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config selects the archive bucket. Endpoint and PathStyle target
// S3-compatible stores such as MinIO.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// NewS3Client builds a client from the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// ArchivingStore copies every snapshot saved to the primary store into
// object storage. An upload failure is logged and counted but does not fail
// the save: the primary store is the one recovery reads from.
type ArchivingStore struct {
	primary SnapshotStore
	client  ObjectPutter
	bucket  string
	prefix  string
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewArchivingStore(primary SnapshotStore, client ObjectPutter, cfg S3Config, metrics *observability.Metrics, logger zerolog.Logger) *ArchivingStore {
	return &ArchivingStore{
		primary: primary,
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		metrics: metrics,
		logger:  logger,
	}
}

func (a *ArchivingStore) Name() string { return a.primary.Name() + "+s3" }

// ObjectKey is where the snapshot of seq is archived.
func (a *ArchivingStore) ObjectKey(seq int64) string {
	return path.Join(a.prefix, "snapshots", fmt.Sprintf("%020d.json", seq))
}

func (a *ArchivingStore) Save(ctx context.Context, snap *core.Snapshot) error {
	if err := a.primary.Save(ctx, snap); err != nil {
		return err
	}

	outcome := "ok"
	if err := a.upload(ctx, snap); err != nil {
		outcome = "error"
		a.logger.Warn().Err(err).Int64("seq", snap.Sequence).Str("bucket", a.bucket).Msg("snapshot archive failed")
	}
	if a.metrics != nil {
		a.metrics.ArchiveUploads.WithLabelValues(outcome).Inc()
	}
	return nil
}

func (a *ArchivingStore) upload(ctx context.Context, snap *core.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	key := a.ObjectKey(snap.Sequence)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"sequence":   fmt.Sprintf("%d", snap.Sequence),
			"state-hash": fmt.Sprintf("%x", snap.StateHash),
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (a *ArchivingStore) LoadLatest(ctx context.Context) (*core.Snapshot, error) {
	return a.primary.LoadLatest(ctx)
}
