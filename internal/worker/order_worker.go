package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/storage"
)

const (
	idempotencyTTL = 24 * time.Hour
	orderTagKey    = "orderId"
)

type OrderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
}

type ArtworkTagger interface {
	SetMetadata(ctx context.Context, key string, updates map[string]string) error
}

// OrderWorker consumes orders.paid and tags each artwork object referenced by
// the order with its id, so later image lookups can find it by metadata.
type OrderWorker struct {
	*consumer
	orderRepo   OrderReader
	tagger      ArtworkTagger
	redisClient *redis.Client
	log         *slog.Logger
}

func NewOrderWorker(
	ch *amqp.Channel,
	orderRepo OrderReader,
	tagger ArtworkTagger,
	redisClient *redis.Client,
	log *slog.Logger,
) *OrderWorker {
	w := &OrderWorker{
		orderRepo:   orderRepo,
		tagger:      tagger,
		redisClient: redisClient,
		log:         log,
	}
	w.consumer = newConsumer(ch, PaidOrderQueue, w.handle, log)
	return w
}

func processedKey(orderID uuid.UUID) string { return "order_processed:" + orderID.String() }

func (w *OrderWorker) handle(ctx context.Context, body []byte) error {
	var orderMsg model.OrderMessage
	if err := json.Unmarshal(body, &orderMsg); err != nil {
		return fmt.Errorf("unmarshal order message: %w", err)
	}

	log := w.log.With("order_id", orderMsg.OrderID, "user_id", orderMsg.UserID)

	idempotencyKey := processedKey(orderMsg.OrderID)
	exists, err := w.redisClient.Exists(ctx, idempotencyKey).Result()
	if err != nil {
		return fmt.Errorf("check idempotency key: %v: %w", err, errRetry)
	}
	if exists > 0 {
		log.Info("order already processed, skipping")
		return nil
	}

	tagged, err := w.tagArtwork(ctx, orderMsg.OrderID, log)
	if err != nil {
		return err
	}

	if err := w.redisClient.Set(ctx, idempotencyKey, "1", idempotencyTTL).Err(); err != nil {
		log.Error("set idempotency key", "error", err)
	}
	log.Info("order artwork tagged", "objects", tagged)
	return nil
}

func (w *OrderWorker) tagArtwork(ctx context.Context, orderID uuid.UUID, log *slog.Logger) (int, error) {
	order, err := w.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return 0, fmt.Errorf("order not found: %s", orderID)
	}

	tags := map[string]string{orderTagKey: orderID.String()}
	tagged := 0
	var failed []error
	for _, key := range artworkKeys(order) {
		if err := w.tagger.SetMetadata(ctx, key, tags); err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				log.Warn("artwork object missing", "key", key)
				continue
			}
			failed = append(failed, fmt.Errorf("tag %s: %w", key, err))
			continue
		}
		tagged++
	}
	if len(failed) > 0 {
		return tagged, errors.Join(failed...)
	}
	return tagged, nil
}

// artworkKeys lists the distinct storage paths the order's items reference.
func artworkKeys(order *model.Order) []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}
	for _, item := range order.Items {
		for _, img := range item.Images {
			add(img.Path)
		}
		add(item.StoragePath)
	}
	return keys
}
