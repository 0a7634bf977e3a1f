// Package archive packages an order's artwork into a single zip file.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/resolver"
)

var (
	ErrNoImages        = errors.New("no images found for order")
	ErrNoImagesFetched = errors.New("none of the order images could be downloaded")
)

const fetchShare = 0.9

type ImageResolver interface {
	Resolve(ctx context.Context, target resolver.Target) (*resolver.Result, error)
}

type PathResolver interface {
	ResolveURL(ctx context.Context, key string) (string, error)
}

// Request selects what to package: explicit storage paths take precedence over
// the order.
type Request struct {
	OrderID string
	Order   *model.Order
	Paths   []string
}

func (r Request) orderID() string {
	if id := path.Base(strings.ReplaceAll(strings.TrimSpace(r.OrderID), "\\", "/")); r.OrderID != "" && id != "." && id != ".." && id != "/" {
		return id
	}
	if r.Order != nil && r.Order.ID != uuid.Nil {
		return r.Order.ID.String()
	}
	return ""
}

type Archive struct {
	Name   string
	Folder string
	Data   []byte
	Files  int
	Failed []string
}

// ProgressFunc receives the completed fraction in [0, 1].
type ProgressFunc func(fraction float64)

type Packager struct {
	resolver    ImageResolver
	paths       PathResolver
	fetcher     Fetcher
	concurrency int
	log         *slog.Logger
}

func NewPackager(res ImageResolver, paths PathResolver, fetcher Fetcher, concurrency int, log *slog.Logger) *Packager {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Packager{resolver: res, paths: paths, fetcher: fetcher, concurrency: concurrency, log: log}
}

func (p *Packager) Build(ctx context.Context, req Request, progress ProgressFunc) (*Archive, error) {
	if progress == nil {
		progress = func(float64) {}
	}

	images, err := p.images(ctx, req)
	if err != nil {
		return nil, err
	}

	folder := "images"
	if id := req.orderID(); id != "" {
		folder = "order_" + id
	}
	log := p.log.With("folder", folder)

	progress(0)
	payloads := make([][]byte, len(images))
	var (
		mu     sync.Mutex
		done   int
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			data, err := p.fetcher.Fetch(gctx, img.URL)
			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				log.Warn("skip image", "path", img.Path, "error", err)
				failed = append(failed, describe(img, i))
			} else {
				payloads[i] = data
			}
			progress(fetchShare * float64(done) / float64(len(images)))
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ok []int
	for i, data := range payloads {
		if data != nil {
			ok = append(ok, i)
		}
	}
	if len(ok) == 0 {
		return nil, ErrNoImagesFetched
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := newNameSet()
	now := time.Now()
	for n, i := range ok {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     folder + "/" + names.unique(fileName(images[i], i)),
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return nil, fmt.Errorf("create zip entry: %w", err)
		}
		if _, err := w.Write(payloads[i]); err != nil {
			return nil, fmt.Errorf("write zip entry: %w", err)
		}
		if n < len(ok)-1 {
			progress(fetchShare + (1-fetchShare)*float64(n+1)/float64(len(ok)))
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	progress(1)

	return &Archive{
		Name:   folder + ".zip",
		Folder: folder,
		Data:   buf.Bytes(),
		Files:  len(ok),
		Failed: failed,
	}, nil
}

func (p *Packager) images(ctx context.Context, req Request) ([]model.ImageDescriptor, error) {
	if len(req.Paths) > 0 {
		var images []model.ImageDescriptor
		for _, key := range req.Paths {
			u, err := p.paths.ResolveURL(ctx, key)
			if err != nil {
				p.log.Warn("skip unresolvable path", "path", key, "error", err)
				continue
			}
			images = append(images, model.ImageDescriptor{URL: u, Path: key})
		}
		if len(images) == 0 {
			return nil, ErrNoImages
		}
		return images, nil
	}

	res, err := p.resolver.Resolve(ctx, resolver.Target{Order: req.Order, OrderID: req.OrderID})
	if err != nil {
		return nil, fmt.Errorf("resolve images: %w", err)
	}
	if !res.Found {
		if len(res.Reasons) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoImages, strings.Join(res.Reasons, "; "))
		}
		return nil, ErrNoImages
	}
	return res.Images, nil
}

// fileName picks the entry name: descriptor name, then the storage path base,
// then image_N.jpg.
func fileName(img model.ImageDescriptor, i int) string {
	for _, candidate := range []string{img.Name, img.Path} {
		if base := path.Base(strings.ReplaceAll(strings.TrimSpace(candidate), "\\", "/")); candidate != "" && base != "." && base != "/" {
			return base
		}
	}
	return fmt.Sprintf("image_%d.jpg", i+1)
}

func describe(img model.ImageDescriptor, i int) string {
	if img.Path != "" {
		return img.Path
	}
	return fileName(img, i)
}

type nameSet map[string]int

func newNameSet() nameSet { return nameSet{} }

func (s nameSet) unique(name string) string {
	key := strings.ToLower(name)
	n := s[key]
	s[key] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	candidate := fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n+1, ext)
	return s.unique(candidate)
}
