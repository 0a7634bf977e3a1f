package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/storybook-api/internal/model"
)

const exportJobTTL = 24 * time.Hour

type ExportJobRepository interface {
	Save(ctx context.Context, job *model.ExportJob) error
	Get(ctx context.Context, id uuid.UUID) (*model.ExportJob, error)
}

type redisExportJobRepo struct{ client *redis.Client }

func NewExportJobRepository(client *redis.Client) ExportJobRepository {
	return &redisExportJobRepo{client: client}
}

func exportJobKey(id uuid.UUID) string { return "export_job:" + id.String() }

func (r *redisExportJobRepo) Save(ctx context.Context, job *model.ExportJob) error {
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode export job: %w", err)
	}
	if err := r.client.Set(ctx, exportJobKey(job.ID), data, exportJobTTL).Err(); err != nil {
		return fmt.Errorf("save export job: %w", err)
	}
	return nil
}

func (r *redisExportJobRepo) Get(ctx context.Context, id uuid.UUID) (*model.ExportJob, error) {
	raw, err := r.client.Get(ctx, exportJobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get export job: %w", err)
	}
	job := &model.ExportJob{}
	if err := json.Unmarshal(raw, job); err != nil {
		return nil, fmt.Errorf("decode export job: %w", err)
	}
	return job, nil
}
