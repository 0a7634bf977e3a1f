package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/storybook-api/internal/archive"
	"github.com/flicky/storybook-api/internal/export"
	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/orderquery"
	"github.com/flicky/storybook-api/internal/repository"
	"github.com/flicky/storybook-api/internal/resolver"
	pkgerrors "github.com/flicky/storybook-api/pkg/errors"
)

var (
	ErrExportNotFound = errors.New("export job not found")
	ErrNoExportOrders = errors.New("export needs at least one order")
)

type ImageResolver interface {
	Resolve(ctx context.Context, target resolver.Target) (*resolver.Result, error)
}

type ArchiveBuilder interface {
	Build(ctx context.Context, req archive.Request, progress archive.ProgressFunc) (*archive.Archive, error)
}

type ExportPublisher interface {
	PublishExport(ctx context.Context, msg model.ExportMessage) error
}

// AdminService backs the order console: listing, status and tracking changes,
// CSV export and artwork downloads.
type AdminService struct {
	orders    repository.OrderRepository
	jobs      repository.ExportJobRepository
	images    ImageResolver
	archives  ArchiveBuilder
	publisher ExportPublisher
	log       *slog.Logger
	now       func() time.Time
}

func NewAdminService(
	orders repository.OrderRepository,
	jobs repository.ExportJobRepository,
	images ImageResolver,
	archives ArchiveBuilder,
	publisher ExportPublisher,
	log *slog.Logger,
) *AdminService {
	return &AdminService{
		orders:    orders,
		jobs:      jobs,
		images:    images,
		archives:  archives,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

func (s *AdminService) ListOrders(ctx context.Context, q orderquery.Query) (orderquery.Result, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return orderquery.Result{}, fmt.Errorf("list orders: %w", err)
	}
	return orderquery.Run(orders, q), nil
}

func (s *AdminService) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// UpdateStatus sets the status label and records one history entry per call.
func (s *AdminService) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus, actor string) (*model.Order, error) {
	if !status.Valid() {
		return nil, pkgerrors.NewValidation("status", "unknown order status")
	}
	change := model.StatusChange{Status: status, Timestamp: s.now().UTC(), UpdatedBy: actor}
	order, err := s.orders.AppendStatus(ctx, id, change)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	s.log.Info("order status updated", "order_id", id, "status", status, "by", actor)
	return order, nil
}

func (s *AdminService) UpdateTracking(ctx context.Context, id uuid.UUID, tracking model.Tracking) (*model.Order, error) {
	if err := s.orders.UpdateTracking(ctx, id, tracking); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update tracking: %w", err)
	}
	return s.GetOrder(ctx, id)
}

// ExportCSV writes every order matching filter, newest first.
func (s *AdminService) ExportCSV(ctx context.Context, w io.Writer, filter orderquery.Filter) error {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	orders = orderquery.Apply(orders, filter)
	orderquery.SortOrders(orders, orderquery.Sort{Field: orderquery.SortDate, Desc: true})
	return export.WriteCSV(w, orders)
}

func (s *AdminService) ResolveImages(ctx context.Context, orderID string) (*resolver.Result, error) {
	return s.images.Resolve(ctx, resolver.Target{OrderID: orderID})
}

func (s *AdminService) DownloadImages(ctx context.Context, orderID uuid.UUID) (*archive.Archive, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.archives.Build(ctx, archive.Request{Order: order}, nil)
}

func (s *AdminService) DownloadPaths(ctx context.Context, paths []string, orderID string) (*archive.Archive, error) {
	return s.archives.Build(ctx, archive.Request{OrderID: orderID, Paths: paths}, nil)
}

// EnqueueExport records a queued job and hands it to the export worker.
func (s *AdminService) EnqueueExport(ctx context.Context, orderIDs []uuid.UUID, actor string) (*model.ExportJob, error) {
	ids := uniqueIDs(orderIDs)
	if len(ids) == 0 {
		return nil, ErrNoExportOrders
	}

	job := &model.ExportJob{
		ID:          uuid.New(),
		OrderIDs:    ids,
		RequestedBy: actor,
		Status:      model.ExportStatusQueued,
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save export job: %w", err)
	}

	if err := s.publisher.PublishExport(ctx, model.ExportMessage{JobID: job.ID}); err != nil {
		job.Status = model.ExportStatusFailed
		job.Error = "could not queue export"
		if saveErr := s.jobs.Save(ctx, job); saveErr != nil {
			s.log.Error("mark export failed", "job_id", job.ID, "error", saveErr)
		}
		return nil, fmt.Errorf("publish export: %w", err)
	}

	s.log.Info("export queued", "job_id", job.ID, "orders", len(ids), "by", actor)
	return job, nil
}

func (s *AdminService) GetExport(ctx context.Context, id uuid.UUID) (*model.ExportJob, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}
	if job == nil {
		return nil, ErrExportNotFound
	}
	return job, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
