package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/resolver"
)

type stubResolver struct {
	result *resolver.Result
	err    error
}

func (s stubResolver) Resolve(context.Context, resolver.Target) (*resolver.Result, error) {
	return s.result, s.err
}

type stubPaths map[string]string

func (s stubPaths) ResolveURL(_ context.Context, key string) (string, error) {
	u, ok := s[key]
	if !ok {
		return "", errors.New("not found")
	}
	return u, nil
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for _, name := range []string{"a", "b", "c"} {
		name := name
		mux.HandleFunc("/"+name+".png", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("png-" + name))
		})
	}
	mux.HandleFunc("/big.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	})
	mux.HandleFunc("/broken.png", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func zipEntries(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		out[f.Name] = string(b)
	}
	return out
}

type progressRecorder struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressRecorder) record(f float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, f)
}

func TestBuild_PartialFailureStillProducesArchive(t *testing.T) {
	srv := imageServer(t)
	orderID := uuid.New()
	res := &resolver.Result{Found: true, Images: []model.ImageDescriptor{
		{URL: srv.URL + "/a.png", Path: "artwork/u1/a.png"},
		{URL: srv.URL + "/b.png", Name: "page.png"},
		{URL: srv.URL + "/c.png"},
		{URL: srv.URL + "/broken.png", Path: "artwork/u1/broken.png"},
	}}
	p := NewPackager(stubResolver{result: res}, nil, NewHTTPFetcher(time.Second), 2, discardLogger())

	rec := &progressRecorder{}
	a, err := p.Build(context.Background(), Request{Order: &model.Order{ID: orderID}}, rec.record)
	require.NoError(t, err)

	folder := "order_" + orderID.String()
	assert.Equal(t, folder+".zip", a.Name)
	assert.Equal(t, 3, a.Files)
	assert.Equal(t, []string{"artwork/u1/broken.png"}, a.Failed)

	entries := zipEntries(t, a.Data)
	assert.Equal(t, map[string]string{
		folder + "/a.png":       "png-a",
		folder + "/page.png":    "png-b",
		folder + "/image_3.jpg": "png-c",
	}, entries)

	require.NotEmpty(t, rec.values)
	assert.True(t, sort.Float64sAreSorted(rec.values))
	assert.Equal(t, 1.0, rec.values[len(rec.values)-1])
	for _, v := range rec.values {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestBuild_AllFetchesFail(t *testing.T) {
	srv := imageServer(t)
	res := &resolver.Result{Found: true, Images: []model.ImageDescriptor{{URL: srv.URL + "/broken.png"}}}
	p := NewPackager(stubResolver{result: res}, nil, NewHTTPFetcher(time.Second), 2, discardLogger())

	_, err := p.Build(context.Background(), Request{OrderID: "o1"}, nil)
	assert.ErrorIs(t, err, ErrNoImagesFetched)
}

func TestBuild_NothingResolved(t *testing.T) {
	res := &resolver.Result{Found: false, Reasons: []string{"order has no line items"}}
	p := NewPackager(stubResolver{result: res}, nil, NewHTTPFetcher(time.Second), 2, discardLogger())

	_, err := p.Build(context.Background(), Request{OrderID: "o1"}, nil)
	assert.ErrorIs(t, err, ErrNoImages)
	assert.Contains(t, err.Error(), "order has no line items")
}

func TestBuild_ExplicitPaths(t *testing.T) {
	srv := imageServer(t)
	paths := stubPaths{
		"artwork/u1/a.png": srv.URL + "/a.png",
		"artwork/u2/a.png": srv.URL + "/b.png",
	}
	p := NewPackager(nil, paths, NewHTTPFetcher(time.Second), 4, discardLogger())

	a, err := p.Build(context.Background(), Request{Paths: []string{"artwork/u1/a.png", "artwork/u2/a.png", "artwork/u3/skip.me"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "images", a.Folder)

	entries := zipEntries(t, a.Data)
	assert.Equal(t, "png-a", entries["images/a.png"])
	assert.Equal(t, "png-b", entries["images/a_2.png"])
}

func TestBuild_OrderIDCannotEscapeFolder(t *testing.T) {
	srv := imageServer(t)
	p := NewPackager(nil, stubPaths{"a.png": srv.URL + "/a.png"}, NewHTTPFetcher(time.Second), 1, discardLogger())

	a, err := p.Build(context.Background(), Request{OrderID: "../../etc", Paths: []string{"a.png"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "order_etc", a.Folder)
	assert.Equal(t, "png-a", zipEntries(t, a.Data)["order_etc/a.png"])

	a, err = p.Build(context.Background(), Request{OrderID: "..", Paths: []string{"a.png"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "images", a.Folder)
}

func TestBuild_OversizedImageCountsAsFailed(t *testing.T) {
	srv := imageServer(t)
	f := NewHTTPFetcher(time.Second)
	f.maxBytes = 32
	paths := stubPaths{"a.png": srv.URL + "/a.png", "big.png": srv.URL + "/big.png"}
	p := NewPackager(nil, paths, f, 2, discardLogger())

	a, err := p.Build(context.Background(), Request{Paths: []string{"a.png", "big.png"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Files)
	assert.Equal(t, []string{"big.png"}, a.Failed)
	assert.NotContains(t, zipEntries(t, a.Data), "images/big.png")
}

func TestBuild_PathsNoneResolvable(t *testing.T) {
	p := NewPackager(nil, stubPaths{}, NewHTTPFetcher(time.Second), 4, discardLogger())
	_, err := p.Build(context.Background(), Request{Paths: []string{"missing.png"}}, nil)
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	srv := imageServer(t)
	f := NewHTTPFetcher(50 * time.Millisecond)

	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL+"/slow.png")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	data, err := f.Fetch(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, "png-a", string(data))
}

func TestHTTPFetcher_RejectsOversizedBody(t *testing.T) {
	srv := imageServer(t)
	f := NewHTTPFetcher(time.Second)
	f.maxBytes = 64

	data, err := f.Fetch(context.Background(), srv.URL+"/big.png")
	require.NoError(t, err)
	assert.Len(t, data, 64)

	f.maxBytes = 63
	_, err = f.Fetch(context.Background(), srv.URL+"/big.png")
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestFileNameAndUnique(t *testing.T) {
	assert.Equal(t, "cover.png", fileName(model.ImageDescriptor{Path: "artwork/u1/cover.png"}, 0))
	assert.Equal(t, "named.jpg", fileName(model.ImageDescriptor{Name: "named.jpg", Path: "x/y.png"}, 0))
	assert.Equal(t, "image_5.jpg", fileName(model.ImageDescriptor{URL: "https://x"}, 4))

	names := newNameSet()
	assert.Equal(t, "a.png", names.unique("a.png"))
	assert.Equal(t, "a_2.png", names.unique("a.png"))
	assert.Equal(t, "A_3.png", names.unique("A.png"))
}
