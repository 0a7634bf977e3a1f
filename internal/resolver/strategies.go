package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/storage"
)

const statConcurrency = 8

const (
	StrategyStructured = "structured"
	StrategyMetadata   = "metadata"
	StrategyDirect     = "direct"
)

type candidate struct {
	key  string
	url  string
	name string
}

// StructuredScan resolves each line item's images[] paths and its singular
// storage fields to presigned URLs. Paths that do not resolve are skipped.
func StructuredScan(store ObjectStore, log *slog.Logger) Strategy {
	return Strategy{Name: StrategyStructured, Find: func(ctx context.Context, target Target) ([]model.ImageDescriptor, string, error) {
		if target.Order == nil {
			return nil, "order record not available", nil
		}
		if len(target.Order.Items) == 0 {
			return nil, "order has no line items", nil
		}

		var candidates []candidate
		for _, item := range target.Order.Items {
			for _, img := range item.Images {
				switch {
				case img.Path != "" && !isInline(img.Path):
					candidates = append(candidates, candidate{key: img.Path, url: img.URL, name: img.Name})
				case IsFetchable(img.URL):
					candidates = append(candidates, candidate{url: img.URL, name: img.Name})
				}
			}
			if item.StoragePath != "" && !isInline(item.StoragePath) {
				candidates = append(candidates, candidate{key: item.StoragePath})
			}
			if IsFetchable(item.StorageURL) {
				candidates = append(candidates, candidate{url: item.StorageURL})
			}
			switch {
			case IsFetchable(item.CoverImage):
				candidates = append(candidates, candidate{url: item.CoverImage})
			case item.CoverImage != "" && !isInline(item.CoverImage):
				candidates = append(candidates, candidate{key: item.CoverImage})
			}
		}

		resolved := make([]*model.ImageDescriptor, len(candidates))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(statConcurrency)
		for i, c := range candidates {
			i, c := i, c
			g.Go(func() error {
				if c.key == "" {
					resolved[i] = &model.ImageDescriptor{URL: c.url, Name: c.name}
					return nil
				}
				u, err := store.ResolveURL(gctx, c.key)
				if err != nil {
					log.Warn("skip unresolvable image path", "path", c.key, "error", err)
					if IsFetchable(c.url) {
						resolved[i] = &model.ImageDescriptor{URL: c.url, Path: c.key, Name: nameFor(c.name, c.key)}
					}
					return nil
				}
				resolved[i] = &model.ImageDescriptor{URL: u, Path: c.key, Name: nameFor(c.name, c.key)}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, "", err
		}

		images := make([]model.ImageDescriptor, 0, len(resolved))
		for _, img := range resolved {
			if img != nil {
				images = append(images, *img)
			}
		}
		if len(images) == 0 {
			return nil, "line items reference no resolvable images", nil
		}
		return images, "", nil
	}}
}

// MetadataLookup scans every user folder under the artwork root for objects
// tagged with the order id, falling back to a substring match on the key.
func MetadataLookup(store ObjectStore, log *slog.Logger) Strategy {
	return Strategy{Name: StrategyMetadata, Find: func(ctx context.Context, target Target) ([]model.ImageDescriptor, string, error) {
		id := target.id()
		if id == "" {
			return nil, "order id unknown", nil
		}

		folders, err := store.ListFolders(ctx, store.ArtworkRoot())
		if err != nil {
			return nil, "", err
		}
		var objects []storage.ObjectInfo
		for _, folder := range folders {
			objs, err := store.ListObjects(ctx, folder)
			if err != nil {
				return nil, "", err
			}
			objects = append(objects, objs...)
		}
		if len(objects) == 0 {
			return nil, "artwork storage is empty", nil
		}

		tagged := make([]bool, len(objects))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(statConcurrency)
		for i, obj := range objects {
			i, obj := i, obj
			g.Go(func() error {
				info, err := store.Stat(gctx, obj.Key)
				if err != nil {
					log.Warn("stat artwork object", "key", obj.Key, "error", err)
					return nil
				}
				tagged[i] = info.MetadataValue("orderId") == id || info.MetadataValue("orderTemp") == id
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, "", err
		}

		var matches []storage.ObjectInfo
		for i, obj := range objects {
			if tagged[i] {
				matches = append(matches, obj)
			}
		}
		if len(matches) == 0 {
			for _, obj := range objects {
				if strings.Contains(obj.Key, id) {
					matches = append(matches, obj)
				}
			}
		}
		if len(matches) == 0 {
			return nil, "no storage objects tagged with this order", nil
		}

		images := make([]model.ImageDescriptor, 0, len(matches))
		for _, obj := range matches {
			u, err := store.ResolveURL(ctx, obj.Key)
			if err != nil {
				log.Warn("skip unresolvable artwork object", "key", obj.Key, "error", err)
				continue
			}
			images = append(images, model.ImageDescriptor{URL: u, Path: obj.Key, Name: nameFor("", obj.Key), Metadata: obj.Metadata})
		}
		if len(images) == 0 {
			return nil, fmt.Sprintf("%d tagged objects could not be resolved", len(matches)), nil
		}
		return images, "", nil
	}}
}

// DirectFields builds best-effort URLs from the raw item fields without
// checking that the objects exist.
func DirectFields(store ObjectStore) Strategy {
	return Strategy{Name: StrategyDirect, Find: func(_ context.Context, target Target) ([]model.ImageDescriptor, string, error) {
		if target.Order == nil {
			return nil, "order record not available", nil
		}
		var images []model.ImageDescriptor
		for _, item := range target.Order.Items {
			if IsFetchable(item.StorageURL) {
				images = append(images, model.ImageDescriptor{URL: item.StorageURL, Path: item.StoragePath, Name: nameFor("", item.StoragePath)})
			} else if item.StoragePath != "" && !isInline(item.StoragePath) {
				images = append(images, model.ImageDescriptor{URL: store.PublicURL(item.StoragePath), Path: item.StoragePath, Name: nameFor("", item.StoragePath)})
			}
			if IsFetchable(item.CoverImage) {
				images = append(images, model.ImageDescriptor{URL: item.CoverImage})
			}
		}
		if len(images) == 0 {
			return nil, "line items carry no storage fields", nil
		}
		return images, "", nil
	}}
}
