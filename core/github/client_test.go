package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"release-sync/core/reconcile"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var repo = reconcile.Repository{Owner: "octo", Name: "widgets"}

func newTestService(t *testing.T, mux *http.ServeMux) *Service {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	svc, err := NewService(Config{
		Token:          "test-token",
		APIURL:         server.URL,
		UploadURL:      server.URL + "/uploads",
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)
	return svc
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewService(t *testing.T) {
	t.Run("MissingToken", func(t *testing.T) {
		_, err := NewService(Config{})
		assert.ErrorIs(t, err, reconcile.ErrConfiguration)
	})

	t.Run("InvalidURL", func(t *testing.T) {
		_, err := NewService(Config{Token: "t", APIURL: "not a url"})
		assert.ErrorIs(t, err, reconcile.ErrConfiguration)
	})

	t.Run("Defaults", func(t *testing.T) {
		svc, err := NewService(Config{Token: "t"})
		require.NoError(t, err)
		assert.Equal(t, "https://api.github.com/", svc.client.BaseURL.String())
		assert.Equal(t, "https://uploads.github.com/", svc.client.UploadURL.String())
	})
}

func TestEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		api        string
		upload     string
		wantAPI    string
		wantUpload string
	}{
		{
			name:       "github.com without slash",
			api:        "https://api.github.com",
			wantAPI:    "https://api.github.com/",
			wantUpload: "https://uploads.github.com/",
		},
		{
			name:       "enterprise server",
			api:        "https://ghe.example.com/api/v3",
			wantAPI:    "https://ghe.example.com/api/v3/",
			wantUpload: "https://ghe.example.com/api/uploads/",
		},
		{
			name:       "explicit upload url",
			api:        "https://ghe.example.com/api/v3/",
			upload:     "https://uploads.ghe.example.com",
			wantAPI:    "https://ghe.example.com/api/v3/",
			wantUpload: "https://uploads.ghe.example.com/",
		},
		{
			name:       "other host keeps the api url",
			api:        "http://127.0.0.1:8080",
			wantAPI:    "http://127.0.0.1:8080/",
			wantUpload: "http://127.0.0.1:8080/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, upload, err := endpoints(tt.api, tt.upload)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAPI, api.String())
			assert.Equal(t, tt.wantUpload, upload.String())
		})
	}
}

func TestFindReleaseByTag(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/releases/tags/v1.0.0", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"id": 7, "tag_name": "v1.0.0", "name": "One", "prerelease": true, "html_url": "https://github.com/octo/widgets/releases/tag/v1.0.0"}`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/releases/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message": "Not Found"}`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/releases", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		writeJSON(w, http.StatusOK, `[]`)
	})
	svc := newTestService(t, mux)

	release, err := svc.FindReleaseByTag(context.Background(), repo, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, reconcile.Release{
		ID:         7,
		Repository: repo,
		Tag:        "v1.0.0",
		Name:       "One",
		Prerelease: true,
		HTMLURL:    "https://github.com/octo/widgets/releases/tag/v1.0.0",
	}, release)

	_, err = svc.FindReleaseByTag(context.Background(), repo, "v2.0.0")
	assert.ErrorIs(t, err, reconcile.ErrNotFound)
}

func TestFindReleaseByTag_Draft(t *testing.T) {
	var listCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/releases/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message": "Not Found"}`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/releases", func(w http.ResponseWriter, r *http.Request) {
		listCalls.Add(1)
		switch r.URL.Query().Get("page") {
		case "", "1":
			next := fmt.Sprintf(`<http://%s/repos/octo/widgets/releases?per_page=100&page=2>; rel="next"`, r.Host)
			w.Header().Set("Link", next)
			writeJSON(w, http.StatusOK, `[{"id": 1, "tag_name": "v2.0.0-rc.1"}, {"id": 2, "tag_name": "v1.0.0"}]`)
		case "2":
			writeJSON(w, http.StatusOK, `[{"id": 3, "tag_name": "v2.0.0", "name": "Two", "draft": true}]`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})
	svc := newTestService(t, mux)

	release, err := svc.FindReleaseByTag(context.Background(), repo, "v2.0.0")
	require.NoError(t, err)
	assert.Equal(t, int64(3), release.ID)
	assert.True(t, release.Draft)
	assert.Equal(t, int32(2), listCalls.Load())

	listCalls.Store(0)
	_, err = svc.FindReleaseByTag(context.Background(), repo, "v2")
	assert.ErrorIs(t, err, reconcile.ErrNotFound)
	assert.Equal(t, int32(2), listCalls.Load())
}

func TestFindReleaseByTag_LookupFailureIsNotNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/releases/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message": "Not Found"}`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/releases", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, `{"message": "Bad Gateway"}`)
	})
	svc := newTestService(t, mux)

	_, err := svc.FindReleaseByTag(context.Background(), repo, "v2.0.0")
	require.Error(t, err)
	assert.NotErrorIs(t, err, reconcile.ErrNotFound)
	assert.True(t, reconcile.IsRetryable(err))
}

func TestCreateRelease(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/octo/widgets/releases", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["tag_name"] == "taken" {
			writeJSON(w, http.StatusUnprocessableEntity, `{"message": "Validation Failed", "errors": [{"resource": "Release", "code": "already_exists", "field": "tag_name"}]}`)
			return
		}
		assert.Equal(t, "v3", body["tag_name"])
		assert.Equal(t, "Third", body["name"])
		assert.Equal(t, true, body["draft"])
		assert.Equal(t, "main", body["target_commitish"])
		writeJSON(w, http.StatusCreated, `{"id": 9, "tag_name": "v3", "name": "Third", "draft": true}`)
	})
	svc := newTestService(t, mux)

	release, err := svc.CreateRelease(context.Background(), repo, "v3", reconcile.ReleaseOptions{
		Name:            "Third",
		Draft:           true,
		TargetCommitish: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), release.ID)
	assert.True(t, release.Draft)

	_, err = svc.CreateRelease(context.Background(), repo, "taken", reconcile.ReleaseOptions{Name: "taken"})
	assert.ErrorIs(t, err, reconcile.ErrReleaseExists)
}

func TestListAssets_Paginates(t *testing.T) {
	sum := digest.FromString("payload")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/releases/7/assets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		switch r.URL.Query().Get("page") {
		case "1":
			next := fmt.Sprintf(`<http://%s/repos/octo/widgets/releases/7/assets?per_page=100&page=2>; rel="next"`, r.Host)
			w.Header().Set("Link", next)
			writeJSON(w, http.StatusOK, fmt.Sprintf(`[{"id": 1, "name": "a.zip", "size": 7, "state": "uploaded", "content_type": "application/zip", "digest": %q}]`, sum))
		case "2":
			writeJSON(w, http.StatusOK, `[{"id": 2, "name": "b.zip", "size": 3, "state": "starter"}]`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})
	svc := newTestService(t, mux)

	assets, err := svc.ListAssets(context.Background(), repo, 7)
	require.NoError(t, err)
	assert.Equal(t, []reconcile.Asset{
		{ID: 1, Name: "a.zip", Size: 7, Digest: sum, ContentType: "application/zip", State: reconcile.AssetUploaded},
		{ID: 2, Name: "b.zip", Size: 3, State: reconcile.AssetUploading},
	}, assets)
}

func TestDeleteAsset(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /repos/octo/widgets/releases/assets/5", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /repos/octo/widgets/releases/assets/6", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message": "Not Found"}`)
	})
	svc := newTestService(t, mux)

	assert.NoError(t, svc.DeleteAsset(context.Background(), repo, 5))
	assert.ErrorIs(t, svc.DeleteAsset(context.Background(), repo, 6), reconcile.ErrNotFound)
}

func TestUploadAsset(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /uploads/repos/octo/widgets/releases/7/assets", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "dup.tar.gz" {
			writeJSON(w, http.StatusUnprocessableEntity, `{"message": "Validation Failed", "errors": [{"resource": "ReleaseAsset", "code": "already_exists", "field": "name"}]}`)
			return
		}

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "app v1.tar.gz", name)
		assert.Equal(t, "application/gzip", r.Header.Get("Content-Type"))
		assert.Equal(t, int64(len("payload")), r.ContentLength)
		assert.Equal(t, "payload", string(body))
		writeJSON(w, http.StatusCreated, `{"id": 33, "name": "app v1.tar.gz", "size": 7, "state": "uploaded", "content_type": "application/gzip"}`)
	})
	svc := newTestService(t, mux)

	asset, err := svc.UploadAsset(context.Background(), repo, 7, reconcile.UploadRequest{
		Name:        "app v1.tar.gz",
		Content:     strings.NewReader("payload"),
		Size:        7,
		ContentType: "application/gzip",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(33), asset.ID)
	assert.Equal(t, reconcile.AssetUploaded, asset.State)

	_, err = svc.UploadAsset(context.Background(), repo, 7, reconcile.UploadRequest{
		Name:    "dup.tar.gz",
		Content: strings.NewReader("x"),
		Size:    1,
	})
	assert.ErrorIs(t, err, reconcile.ErrAssetNameConflict)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		header    map[string]string
		body      string
		sentinel  error
		retryable bool
		wait      time.Duration
	}{
		{
			name:     "bad credentials",
			status:   http.StatusUnauthorized,
			body:     `{"message": "Bad credentials"}`,
			sentinel: reconcile.ErrAuth,
		},
		{
			name:     "missing permission",
			status:   http.StatusForbidden,
			body:     `{"message": "Resource not accessible by integration"}`,
			sentinel: reconcile.ErrAuth,
		},
		{
			name:      "server error",
			status:    http.StatusBadGateway,
			body:      `{"message": "Server Error"}`,
			retryable: true,
		},
		{
			name:      "too many requests",
			status:    http.StatusTooManyRequests,
			header:    map[string]string{"Retry-After": "7"},
			body:      `{"message": "slow down"}`,
			retryable: true,
			wait:      7 * time.Second,
		},
		{
			name:      "secondary rate limit",
			status:    http.StatusForbidden,
			header:    map[string]string{"Retry-After": "3"},
			body:      `{"message": "You have exceeded a secondary rate limit", "documentation_url": "https://docs.github.com/rest/overview/rate-limits-for-the-rest-api#about-secondary-rate-limits"}`,
			retryable: true,
			wait:      3 * time.Second,
		},
		{
			name:   "validation failure is permanent",
			status: http.StatusUnprocessableEntity,
			body:   `{"message": "Validation Failed", "errors": [{"resource": "ReleaseAsset", "code": "invalid", "field": "size"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /repos/octo/widgets/releases/tags/v1", func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				writeJSON(w, tt.status, tt.body)
			})
			svc := newTestService(t, mux)

			_, err := svc.FindReleaseByTag(context.Background(), repo, "v1")
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.Equal(t, tt.retryable, reconcile.IsRetryable(err))

			var limited *reconcile.RateLimitedError
			if errors.As(err, &limited) {
				assert.Equal(t, tt.wait, limited.RetryAfter)
			} else {
				assert.Zero(t, tt.wait)
			}
		})
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	svc, err := NewService(Config{Token: "t", APIURL: addr})
	require.NoError(t, err)

	_, err = svc.FindReleaseByTag(context.Background(), repo, "v1")
	assert.True(t, reconcile.IsRetryable(err))
}
