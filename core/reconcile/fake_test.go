package reconcile

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var testRepo = Repository{Owner: "octo", Name: "widgets"}

// fakeService is an in-memory release platform. Hooks run under no lock and may inject
// failures; a nil hook means the call behaves normally.
type fakeService struct {
	mu       sync.Mutex
	nextID   int64
	releases map[string]Release
	assets   map[int64][]Asset
	noDigest bool

	// rename, when set, is applied to upload names the way a platform normalizes them.
	rename func(string) string

	// beforeX hooks run before the call takes effect; a non-nil error aborts the call.
	beforeFind   func(call int) error
	beforeCreate func(call int) error
	beforeList   func(call int) error
	beforeDelete func(id int64, call int) error
	beforeUpload func(req UploadRequest, call int) error

	// afterUpload runs once the asset is stored; a non-nil error simulates a lost response.
	afterUpload func(asset Asset, call int) error

	findCalls, createCalls, listCalls, deleteCalls, uploadCalls atomic.Int32

	inflight, maxInflight atomic.Int32
	uploadDelay           time.Duration
}

func newFakeService() *fakeService {
	return &fakeService{
		nextID:   100,
		releases: make(map[string]Release),
		assets:   make(map[int64][]Asset),
	}
}

func (f *fakeService) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeService) totalCalls() int {
	return int(f.findCalls.Load() + f.createCalls.Load() + f.listCalls.Load() + f.deleteCalls.Load() + f.uploadCalls.Load())
}

// seedRelease adds a release the way another actor would.
func (f *fakeService) seedRelease(tag string) Release {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := Release{ID: f.id(), Repository: testRepo, Tag: tag, Name: tag}
	f.releases[tag] = r
	return r
}

// seedAsset attaches a complete asset the way another actor would.
func (f *fakeService) seedAsset(releaseID int64, name, content string) Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := Asset{
		ID:     f.id(),
		Name:   name,
		Size:   int64(len(content)),
		Digest: digest.FromString(content),
		State:  AssetUploaded,
	}
	if f.noDigest {
		a.Digest = ""
	}
	f.assets[releaseID] = append(f.assets[releaseID], a)
	return a
}

func (f *fakeService) setState(releaseID, assetID int64, state AssetState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.assets[releaseID] {
		if f.assets[releaseID][i].ID == assetID {
			f.assets[releaseID][i].State = state
		}
	}
}

func (f *fakeService) snapshot(releaseID int64) []Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]Asset(nil), f.assets[releaseID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *fakeService) names(releaseID int64) []string {
	var out []string
	for _, a := range f.snapshot(releaseID) {
		out = append(out, a.Name)
	}
	return out
}

func (f *fakeService) FindReleaseByTag(_ context.Context, _ Repository, tag string) (Release, error) {
	call := int(f.findCalls.Add(1))
	if f.beforeFind != nil {
		if err := f.beforeFind(call); err != nil {
			return Release{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.releases[tag]
	if !ok {
		return Release{}, fmt.Errorf("release %s: %w", tag, ErrNotFound)
	}
	return r, nil
}

func (f *fakeService) CreateRelease(_ context.Context, repo Repository, tag string, opts ReleaseOptions) (Release, error) {
	call := int(f.createCalls.Add(1))
	if f.beforeCreate != nil {
		if err := f.beforeCreate(call); err != nil {
			return Release{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.releases[tag]; ok {
		return Release{}, ErrReleaseExists
	}
	r := Release{
		ID:         f.id(),
		Repository: repo,
		Tag:        tag,
		Name:       opts.Name,
		Draft:      opts.Draft,
		Prerelease: opts.Prerelease,
	}
	f.releases[tag] = r
	return r, nil
}

func (f *fakeService) ListAssets(_ context.Context, _ Repository, releaseID int64) ([]Asset, error) {
	call := int(f.listCalls.Add(1))
	if f.beforeList != nil {
		if err := f.beforeList(call); err != nil {
			return nil, err
		}
	}
	return f.snapshot(releaseID), nil
}

func (f *fakeService) DeleteAsset(_ context.Context, _ Repository, assetID int64) error {
	call := int(f.deleteCalls.Add(1))
	if f.beforeDelete != nil {
		if err := f.beforeDelete(assetID, call); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for rid, list := range f.assets {
		for i, a := range list {
			if a.ID == assetID {
				f.assets[rid] = append(list[:i:i], list[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("asset %d: %w", assetID, ErrNotFound)
}

func (f *fakeService) UploadAsset(ctx context.Context, _ Repository, releaseID int64, req UploadRequest) (Asset, error) {
	call := int(f.uploadCalls.Add(1))
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	if f.beforeUpload != nil {
		if err := f.beforeUpload(req, call); err != nil {
			return Asset{}, err
		}
	}

	body, err := io.ReadAll(req.Content)
	if err != nil {
		return Asset{}, err
	}
	if int64(len(body)) != req.Size {
		return Asset{}, fmt.Errorf("content length %d does not match size %d", len(body), req.Size)
	}
	if f.uploadDelay > 0 {
		select {
		case <-time.After(f.uploadDelay):
		case <-ctx.Done():
			return Asset{}, ctx.Err()
		}
	}

	name := req.Name
	if f.rename != nil {
		name = f.rename(name)
	}

	f.mu.Lock()
	for _, a := range f.assets[releaseID] {
		if a.Name == name {
			f.mu.Unlock()
			return Asset{}, fmt.Errorf("asset %s: %w", name, ErrAssetNameConflict)
		}
	}
	a := Asset{
		ID:          f.id(),
		Name:        name,
		Size:        int64(len(body)),
		Digest:      digest.FromBytes(body),
		ContentType: req.ContentType,
		State:       AssetUploaded,
	}
	if f.noDigest {
		a.Digest = ""
	}
	f.assets[releaseID] = append(f.assets[releaseID], a)
	f.mu.Unlock()

	if f.afterUpload != nil {
		if err := f.afterUpload(a, call); err != nil {
			return Asset{}, err
		}
	}
	return a, nil
}

func (f *fakeService) NormalizeAssetName(name string) string {
	if f.rename == nil {
		return name
	}
	return f.rename(name)
}

var (
	_ Service    = (*fakeService)(nil)
	_ AssetNamer = (*fakeService)(nil)
)

// withoutNamer hides the AssetNamer implementation of a service.
type withoutNamer struct {
	Service
}

// testPolicy retries quickly so tests stay fast.
func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
		CallTimeout:     time.Second,
		UploadTimeout:   time.Second,

		MaxRateLimitWait: 100 * time.Millisecond,
	}
}

// newTestFs writes files into an in-memory filesystem.
func newTestFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func transient(op string) error {
	return &TransientError{Op: op, Err: fmt.Errorf("connection reset by peer")}
}
