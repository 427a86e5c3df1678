package github

import (
	"context"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"release-sync/core/reconcile"

	gogithub "github.com/google/go-github/v73/github"
	"github.com/opencontainers/go-digest"
	"golang.org/x/oauth2"
)

const (
	defaultAPIURL   = "https://api.github.com/"
	assetsPerPage   = 100
	releasesPerPage = 100
)

// Service talks to the GitHub release API.
type Service struct {
	client *gogithub.Client
}

var _ reconcile.Service = (*Service)(nil)

// NewService creates a GitHub service based on the configuration.
func NewService(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%w: a GitHub token is required", reconcile.ErrConfiguration)
	}

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	timeoutDuration := time.Duration(timeout) * time.Second

	// Uploads may stream for minutes, so there is no overall client timeout; each call
	// is bounded by its context instead.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeoutDuration,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeoutDuration,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeoutDuration,
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   transport,
		},
	}

	baseURL, uploadURL, err := endpoints(cfg.APIURL, cfg.UploadURL)
	if err != nil {
		return nil, err
	}

	client := gogithub.NewClient(httpClient)
	client.BaseURL = baseURL
	client.UploadURL = uploadURL

	return &Service{client: client}, nil
}

// endpoints resolves the API and upload base URLs. Both always end with a slash.
func endpoints(apiURL, uploadURL string) (*url.URL, *url.URL, error) {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	base, err := parseBaseURL(apiURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid api url %q: %v", reconcile.ErrConfiguration, apiURL, err)
	}

	if uploadURL != "" {
		upload, err := parseBaseURL(uploadURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid upload url %q: %v", reconcile.ErrConfiguration, uploadURL, err)
		}
		return base, upload, nil
	}

	upload := *base
	switch {
	case upload.Host == "api.github.com":
		upload.Host = "uploads.github.com"
	case strings.HasSuffix(upload.Path, "/api/v3/"):
		upload.Path = strings.TrimSuffix(upload.Path, "v3/") + "uploads/"
	}
	return base, &upload, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("scheme and host are required")
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// FindReleaseByTag returns the release for tag, drafts included.
func (s *Service) FindReleaseByTag(ctx context.Context, repo reconcile.Repository, tag string) (reconcile.Release, error) {
	rel, _, err := s.client.Repositories.GetReleaseByTag(ctx, repo.Owner, repo.Name, tag)
	if err == nil {
		return toRelease(repo, rel), nil
	}
	if err = mapError(ctx, "find release", err, nil); !errors.Is(err, reconcile.ErrNotFound) {
		return reconcile.Release{}, err
	}
	// The tag endpoint only serves published releases.
	return s.findDraftByTag(ctx, repo, tag)
}

// findDraftByTag pages through all releases looking for tag.
func (s *Service) findDraftByTag(ctx context.Context, repo reconcile.Repository, tag string) (reconcile.Release, error) {
	opts := &gogithub.ListOptions{PerPage: releasesPerPage}
	for {
		releases, resp, err := s.client.Repositories.ListReleases(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return reconcile.Release{}, mapError(ctx, "list releases", err, nil)
		}
		for _, rel := range releases {
			if rel.GetTagName() == tag {
				return toRelease(repo, rel), nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return reconcile.Release{}, fmt.Errorf("find release %s: %w", tag, reconcile.ErrNotFound)
		}
		opts.Page = resp.NextPage
	}
}

// CreateRelease creates a release for tag.
func (s *Service) CreateRelease(ctx context.Context, repo reconcile.Repository, tag string, opts reconcile.ReleaseOptions) (reconcile.Release, error) {
	req := &gogithub.RepositoryRelease{
		TagName:    gogithub.Ptr(tag),
		Name:       gogithub.Ptr(opts.Name),
		Draft:      gogithub.Ptr(opts.Draft),
		Prerelease: gogithub.Ptr(opts.Prerelease),
	}
	if opts.TargetCommitish != "" {
		req.TargetCommitish = gogithub.Ptr(opts.TargetCommitish)
	}

	rel, _, err := s.client.Repositories.CreateRelease(ctx, repo.Owner, repo.Name, req)
	if err != nil {
		return reconcile.Release{}, mapError(ctx, "create release", err, reconcile.ErrReleaseExists)
	}
	return toRelease(repo, rel), nil
}

// releaseAsset is the release asset payload. It is decoded locally so the content
// digest GitHub reports for new assets is kept.
type releaseAsset struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	State       string `json:"state"`
	ContentType string `json:"content_type"`
	Digest      string `json:"digest"`
}

// ListAssets returns every asset of the release, following pagination.
func (s *Service) ListAssets(ctx context.Context, repo reconcile.Repository, releaseID int64) ([]reconcile.Asset, error) {
	var assets []reconcile.Asset
	page := 1
	for {
		u := fmt.Sprintf("repos/%s/%s/releases/%d/assets?per_page=%d&page=%d",
			url.PathEscape(repo.Owner), url.PathEscape(repo.Name), releaseID, assetsPerPage, page)
		req, err := s.client.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build list request: %w", err)
		}

		var batch []releaseAsset
		resp, err := s.client.Do(ctx, req, &batch)
		if err != nil {
			return nil, mapError(ctx, "list assets", err, nil)
		}
		for _, a := range batch {
			assets = append(assets, toAsset(a))
		}

		if resp == nil || resp.NextPage == 0 {
			return assets, nil
		}
		page = resp.NextPage
	}
}

// DeleteAsset deletes a release asset.
func (s *Service) DeleteAsset(ctx context.Context, repo reconcile.Repository, assetID int64) error {
	if _, err := s.client.Repositories.DeleteReleaseAsset(ctx, repo.Owner, repo.Name, assetID); err != nil {
		return mapError(ctx, "delete asset", err, nil)
	}
	return nil
}

// UploadAsset streams req.Content to the upload endpoint with an explicit length.
func (s *Service) UploadAsset(ctx context.Context, repo reconcile.Repository, releaseID int64, up reconcile.UploadRequest) (reconcile.Asset, error) {
	u := fmt.Sprintf("repos/%s/%s/releases/%d/assets?%s",
		url.PathEscape(repo.Owner), url.PathEscape(repo.Name), releaseID, url.Values{"name": {up.Name}}.Encode())

	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := s.client.NewUploadRequest(u, up.Content, up.Size, contentType)
	if err != nil {
		return reconcile.Asset{}, fmt.Errorf("failed to build upload request: %w", err)
	}

	var created releaseAsset
	if _, err := s.client.Do(ctx, req, &created); err != nil {
		return reconcile.Asset{}, mapError(ctx, "upload asset", err, reconcile.ErrAssetNameConflict)
	}
	return toAsset(created), nil
}

func toRelease(repo reconcile.Repository, rel *gogithub.RepositoryRelease) reconcile.Release {
	return reconcile.Release{
		ID:         rel.GetID(),
		Repository: repo,
		Tag:        rel.GetTagName(),
		Name:       rel.GetName(),
		Draft:      rel.GetDraft(),
		Prerelease: rel.GetPrerelease(),
		HTMLURL:    rel.GetHTMLURL(),
	}
}

func toAsset(a releaseAsset) reconcile.Asset {
	asset := reconcile.Asset{
		ID:          a.ID,
		Name:        a.Name,
		Size:        a.Size,
		ContentType: a.ContentType,
		State:       toState(a.State),
	}
	if d, err := digest.Parse(a.Digest); err == nil {
		asset.Digest = d
	}
	return asset
}

func toState(state string) reconcile.AssetState {
	switch state {
	case "uploaded":
		return reconcile.AssetUploaded
	case "starter", "open", "new":
		return reconcile.AssetUploading
	case "":
		return reconcile.AssetUploaded
	default:
		return reconcile.AssetFailed
	}
}
