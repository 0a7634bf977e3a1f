package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/storybook-api/internal/archive"
	"github.com/flicky/storybook-api/internal/dto"
	"github.com/flicky/storybook-api/internal/export"
	"github.com/flicky/storybook-api/internal/middleware"
	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/orderquery"
	"github.com/flicky/storybook-api/internal/resolver"
)

type Admin interface {
	ListOrders(ctx context.Context, q orderquery.Query) (orderquery.Result, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus, actor string) (*model.Order, error)
	UpdateTracking(ctx context.Context, id uuid.UUID, tracking model.Tracking) (*model.Order, error)
	ExportCSV(ctx context.Context, w io.Writer, filter orderquery.Filter) error
	ResolveImages(ctx context.Context, orderID string) (*resolver.Result, error)
	DownloadImages(ctx context.Context, orderID uuid.UUID) (*archive.Archive, error)
	DownloadPaths(ctx context.Context, paths []string, orderID string) (*archive.Archive, error)
	EnqueueExport(ctx context.Context, orderIDs []uuid.UUID, actor string) (*model.ExportJob, error)
	GetExport(ctx context.Context, id uuid.UUID) (*model.ExportJob, error)
}

type AdminHandler struct {
	admin Admin
	log   *slog.Logger
}

func NewAdminHandler(admin Admin, log *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, log: log}
}

func (h *AdminHandler) ListOrders(c *gin.Context) {
	var req dto.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter, err := toFilter(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.admin.ListOrders(c.Request.Context(), orderquery.Query{
		Filter: filter,
		Sort:   orderquery.Sort{Field: orderquery.SortField(req.Sort), Desc: req.Order == "desc"},
		Page:   req.Page,
		Limit:  req.Limit,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.OrderListResponse{
		Orders: dto.ToOrderResponses(res.Orders),
		Total:  res.Total,
		Page:   res.Page,
		Limit:  res.Limit,
		Pages:  res.Pages,
	})
}

func (h *AdminHandler) GetOrder(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	order, err := h.admin.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToOrderResponse(order))
}

func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.admin.UpdateStatus(c.Request.Context(), id, req.Status, middleware.GetActor(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToOrderResponse(order))
}

func (h *AdminHandler) UpdateTracking(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req dto.UpdateTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.admin.UpdateTracking(c.Request.Context(), id, req.ToTracking())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToOrderResponse(order))
}

// ExportCSV downloads the filtered order list. Paging parameters are ignored.
func (h *AdminHandler) ExportCSV(c *gin.Context) {
	var req dto.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter, err := toFilter(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := h.admin.ExportCSV(c.Request.Context(), &buf, filter); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Header("Content-Disposition", attachment(export.FileName(time.Now())))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *AdminHandler) ResolveImages(c *gin.Context) {
	id := c.Param("id")
	res, err := h.admin.ResolveImages(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ImagesResponse{OrderID: id, Result: *res})
}

func (h *AdminHandler) DownloadImages(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	arc, err := h.admin.DownloadImages(c.Request.Context(), id)
	h.sendArchive(c, arc, err)
}

func (h *AdminHandler) DownloadPaths(c *gin.Context) {
	var req dto.DownloadPathsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	arc, err := h.admin.DownloadPaths(c.Request.Context(), req.Paths, req.OrderID)
	h.sendArchive(c, arc, err)
}

func (h *AdminHandler) sendArchive(c *gin.Context, arc *archive.Archive, err error) {
	middleware.RecordArchive(err == nil)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Header("Content-Disposition", attachment(arc.Name))
	c.Header("X-Archive-Files", strconv.Itoa(arc.Files))
	c.Header("X-Archive-Failed", strconv.Itoa(len(arc.Failed)))
	c.Data(http.StatusOK, "application/zip", arc.Data)
}

func (h *AdminHandler) CreateExport(c *gin.Context) {
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := h.admin.EnqueueExport(c.Request.Context(), req.OrderIDs, middleware.GetActor(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *AdminHandler) GetExport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid export ID"})
		return
	}
	job, err := h.admin.GetExport(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func toFilter(req dto.ListOrdersRequest) (orderquery.Filter, error) {
	filter := orderquery.Filter{Status: model.OrderStatus(req.Status), Search: req.Search}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, fmt.Errorf("unknown status %q", req.Status)
	}
	var err error
	if filter.From, err = orderquery.ParseBound(req.From, false); err != nil {
		return filter, err
	}
	if filter.To, err = orderquery.ParseBound(req.To, true); err != nil {
		return filter, err
	}
	return filter, nil
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}
