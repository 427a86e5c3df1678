package mocks

import (
	"context"

	"release-sync/core/reconcile"

	"github.com/stretchr/testify/mock"
)

// Service is a mock implementation of reconcile.Service
type Service struct {
	mock.Mock
}

func (m *Service) FindReleaseByTag(ctx context.Context, repo reconcile.Repository, tag string) (reconcile.Release, error) {
	args := m.Called(ctx, repo, tag)
	return args.Get(0).(reconcile.Release), args.Error(1)
}

func (m *Service) CreateRelease(ctx context.Context, repo reconcile.Repository, tag string, opts reconcile.ReleaseOptions) (reconcile.Release, error) {
	args := m.Called(ctx, repo, tag, opts)
	return args.Get(0).(reconcile.Release), args.Error(1)
}

func (m *Service) ListAssets(ctx context.Context, repo reconcile.Repository, releaseID int64) ([]reconcile.Asset, error) {
	args := m.Called(ctx, repo, releaseID)
	if assets, ok := args.Get(0).([]reconcile.Asset); ok {
		return assets, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Service) DeleteAsset(ctx context.Context, repo reconcile.Repository, assetID int64) error {
	args := m.Called(ctx, repo, assetID)
	return args.Error(0)
}

func (m *Service) UploadAsset(ctx context.Context, repo reconcile.Repository, releaseID int64, req reconcile.UploadRequest) (reconcile.Asset, error) {
	args := m.Called(ctx, repo, releaseID, req)
	return args.Get(0).(reconcile.Asset), args.Error(1)
}

var _ reconcile.Service = (*Service)(nil)
