package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/storybook-api/internal/archive"
	"github.com/flicky/storybook-api/internal/middleware"
	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/repository"
)

type ArchiveBuilder interface {
	Build(ctx context.Context, req archive.Request, progress archive.ProgressFunc) (*archive.Archive, error)
}

type ExportStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key string) (string, error)
}

// ExportWorker consumes export jobs. Each order becomes one zip under
// <prefix>/<jobID>/; a job fails only when no order could be exported.
type ExportWorker struct {
	*consumer
	jobs     repository.ExportJobRepository
	orders   OrderReader
	archives ArchiveBuilder
	store    ExportStore
	prefix   string
	log      *slog.Logger
}

func NewExportWorker(
	ch *amqp.Channel,
	jobs repository.ExportJobRepository,
	orders OrderReader,
	archives ArchiveBuilder,
	store ExportStore,
	prefix string,
	log *slog.Logger,
) *ExportWorker {
	w := &ExportWorker{
		jobs:     jobs,
		orders:   orders,
		archives: archives,
		store:    store,
		prefix:   prefix,
		log:      log,
	}
	w.consumer = newConsumer(ch, ExportQueue, w.handle, log)
	return w
}

func (w *ExportWorker) handle(ctx context.Context, body []byte) error {
	var msg model.ExportMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal export message: %w", err)
	}
	return w.Run(ctx, msg.JobID)
}

// Run processes one job. Jobs that already finished are left untouched.
func (w *ExportWorker) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get export job: %v: %w", err, errRetry)
	}
	if job == nil {
		return fmt.Errorf("export job not found: %s", jobID)
	}
	if job.Status == model.ExportStatusCompleted || job.Status == model.ExportStatusFailed {
		return nil
	}

	log := w.log.With("job_id", job.ID)
	job.Status = model.ExportStatusRunning
	job.Progress = 0
	job.Results = nil
	w.save(ctx, job, log)

	total := float64(len(job.OrderIDs))
	succeeded := 0
	for i, orderID := range job.OrderIDs {
		res := w.exportOrder(ctx, job.ID, orderID)
		if res.Error == "" {
			succeeded++
		} else {
			log.Warn("order export failed", "order_id", orderID, "error", res.Error)
		}
		middleware.RecordArchive(res.Error == "")
		job.Results = append(job.Results, res)
		job.Progress = float64(i+1) / total
		w.save(ctx, job, log)
	}

	job.Progress = 1
	if succeeded == 0 {
		job.Status = model.ExportStatusFailed
		job.Error = "no order could be exported"
	} else {
		job.Status = model.ExportStatusCompleted
	}
	if err := w.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("save export job: %v: %w", err, errRetry)
	}
	log.Info("export finished", "status", job.Status, "exported", succeeded, "orders", len(job.OrderIDs))
	return nil
}

func (w *ExportWorker) exportOrder(ctx context.Context, jobID, orderID uuid.UUID) model.ExportOrderResult {
	res := model.ExportOrderResult{OrderID: orderID}

	order, err := w.orders.GetByID(ctx, orderID)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if order == nil {
		res.Error = "order not found"
		return res
	}

	arc, err := w.archives.Build(ctx, archive.Request{Order: order}, nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Files = arc.Files
	res.Failed = len(arc.Failed)

	key := path.Join(w.prefix, jobID.String(), arc.Name)
	if err := w.store.Put(ctx, key, bytes.NewReader(arc.Data), int64(len(arc.Data)), "application/zip"); err != nil {
		res.Error = err.Error()
		return res
	}
	res.ObjectPath = key

	url, err := w.store.PresignedURL(ctx, key)
	if err != nil {
		w.log.Warn("presign export", "key", key, "error", err)
	}
	res.DownloadURL = url
	return res
}

// save records intermediate progress; errors are only logged.
func (w *ExportWorker) save(ctx context.Context, job *model.ExportJob, log *slog.Logger) {
	if err := w.jobs.Save(ctx, job); err != nil {
		log.Warn("save export progress", "error", err)
	}
}
