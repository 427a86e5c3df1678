package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	"go.uber.org/multierr"
)

// Repository identifies a repository on the hosting platform.
type Repository struct {
	// Owner is the user or organisation owning the repository.
	Owner string `json:"owner" yaml:"owner"`

	// Name is the repository name.
	Name string `json:"name" yaml:"name"`
}

// ParseRepository parses an "owner/name" identifier.
func ParseRepository(s string) (Repository, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fmt.Errorf("%w: repository must be in the form owner/name, got %q", ErrConfiguration, s)
	}
	return Repository{Owner: owner, Name: name}, nil
}

// String returns the "owner/name" form.
func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// Release is a tagged publication point carrying downloadable assets.
// Its identity is (Repository, Tag).
type Release struct {
	// ID is the remote identifier assigned by the platform.
	ID int64 `json:"id" yaml:"id"`

	// Repository is the repository the release belongs to.
	Repository Repository `json:"repository" yaml:"repository"`

	// Tag is the git tag the release is attached to.
	Tag string `json:"tag" yaml:"tag"`

	// Name is the display name of the release.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Draft reports whether the release is unpublished.
	Draft bool `json:"draft" yaml:"draft"`

	// Prerelease reports whether the release is marked as a prerelease.
	Prerelease bool `json:"prerelease" yaml:"prerelease"`

	// HTMLURL is the browser URL of the release, when known.
	HTMLURL string `json:"html_url,omitempty" yaml:"html_url,omitempty"`

	// Assets is the asset list as last observed.
	Assets []Asset `json:"assets" yaml:"assets"`
}

// ReleaseOptions controls how a missing release is created.
// The zero value creates a published, non-prerelease release named after its tag.
type ReleaseOptions struct {
	Name            string
	TargetCommitish string
	Draft           bool
	Prerelease      bool
}

// AssetState is the upload state of a remote asset.
type AssetState string

const (
	// AssetPending is an asset that has been planned but not started.
	AssetPending AssetState = "pending"
	// AssetUploading is an asset whose content is not complete yet.
	AssetUploading AssetState = "uploading"
	// AssetUploaded is an asset whose content is complete.
	AssetUploaded AssetState = "uploaded"
	// AssetFailed is an asset whose upload failed.
	AssetFailed AssetState = "failed"
)

// Asset is a named file attached to a release. Names are unique within a release.
type Asset struct {
	ID          int64         `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Size        int64         `json:"size" yaml:"size"`
	Digest      digest.Digest `json:"digest,omitempty" yaml:"digest,omitempty"`
	ContentType string        `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	State       AssetState    `json:"state" yaml:"state"`
}

// DesiredAsset is a local file that should exist on the release under Name.
type DesiredAsset struct {
	// Name is the asset name, the base name of Path.
	Name string

	// Path is the local file path.
	Path string

	// Size is the file size in bytes at planning time.
	Size int64

	// Digest is the sha256 content digest at planning time.
	Digest digest.Digest

	// ContentType is the detected media type sent with the upload.
	ContentType string
}

// DesiredAssetSet maps asset names to local files. Iteration is ordered by name.
type DesiredAssetSet struct {
	byName map[string]DesiredAsset
	names  []string
}

// NewDesiredAssetSet builds a set from assets with distinct names.
// Later entries with an already present name are ignored; PlanAssets reports such
// collisions before a set is ever built.
func NewDesiredAssetSet(assets ...DesiredAsset) DesiredAssetSet {
	s := DesiredAssetSet{byName: make(map[string]DesiredAsset, len(assets))}
	for _, a := range assets {
		if _, exists := s.byName[a.Name]; exists {
			continue
		}
		s.byName[a.Name] = a
		s.names = append(s.names, a.Name)
	}
	sort.Strings(s.names)
	return s
}

// Len returns the number of desired assets.
func (s DesiredAssetSet) Len() int {
	return len(s.names)
}

// Names returns the asset names in order.
func (s DesiredAssetSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Get returns the desired asset with the given name.
func (s DesiredAssetSet) Get(name string) (DesiredAsset, bool) {
	a, ok := s.byName[name]
	return a, ok
}

// All returns the desired assets ordered by name.
func (s DesiredAssetSet) All() []DesiredAsset {
	out := make([]DesiredAsset, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.byName[n])
	}
	return out
}

// ActionType represents the type of a planned asset action.
type ActionType string

const (
	// ActionUpload uploads a file under a name not present on the release.
	ActionUpload ActionType = "upload"
	// ActionReplace deletes the existing asset with the same name, then uploads.
	ActionReplace ActionType = "replace"
	// ActionSkip leaves the existing asset in place.
	ActionSkip ActionType = "skip"
)

// Action represents a planned asset operation.
type Action struct {
	// Type specifies the action to perform.
	Type ActionType `json:"type" yaml:"type"`

	// Name is the asset name.
	Name string `json:"name" yaml:"name"`

	// Asset is the local file backing the action.
	Asset DesiredAsset `json:"-" yaml:"-"`

	// ExistingID is the remote asset with the same name: deleted before upload for
	// ActionReplace, kept for ActionSkip.
	ExistingID int64 `json:"existing_id,omitempty" yaml:"existing_id,omitempty"`

	// Reason explains why this action was chosen.
	Reason string `json:"reason" yaml:"reason"`
}

// Plan contains the release handle and the ordered actions that reconcile it.
type Plan struct {
	// Release is the release the plan targets.
	Release Release `json:"release" yaml:"release"`

	// ReleaseExists is false when the plan was built for a release that would be created.
	ReleaseExists bool `json:"release_exists" yaml:"release_exists"`

	// Actions contains one action per desired asset, ordered by asset name.
	Actions []Action `json:"actions" yaml:"actions"`

	// Summary provides aggregate counts.
	Summary PlanSummary `json:"summary" yaml:"summary"`
}

// PlanSummary provides aggregate statistics for a plan.
type PlanSummary struct {
	Uploads  int `json:"uploads" yaml:"uploads"`
	Replaces int `json:"replaces" yaml:"replaces"`
	Skips    int `json:"skips" yaml:"skips"`

	// Untouched counts existing assets that are not part of the desired set.
	Untouched int `json:"untouched" yaml:"untouched"`
}

// ResultStatus is the terminal state of one desired asset after a run.
type ResultStatus string

const (
	StatusCreated  ResultStatus = "created"
	StatusReplaced ResultStatus = "replaced"
	StatusSkipped  ResultStatus = "skipped"
	StatusFailed   ResultStatus = "failed"
)

// AssetResult is the outcome of executing one action.
type AssetResult struct {
	Name     string       `json:"name" yaml:"name"`
	Action   ActionType   `json:"action" yaml:"action"`
	Status   ResultStatus `json:"status" yaml:"status"`
	AssetID  int64        `json:"asset_id,omitempty" yaml:"asset_id,omitempty"`
	Size     int64        `json:"size" yaml:"size"`
	Attempts int          `json:"attempts" yaml:"attempts"`
	Err      error        `json:"-" yaml:"-"`
}

// Failed reports whether the action ended in failure.
func (r AssetResult) Failed() bool {
	return r.Status == StatusFailed
}

// Outcome aggregates the per-asset results of a run.
type Outcome struct {
	Release Release       `json:"release" yaml:"release"`
	Created bool          `json:"release_created" yaml:"release_created"`
	Results []AssetResult `json:"results" yaml:"results"`
}

// Succeeded returns the results that did not fail.
func (o *Outcome) Succeeded() []AssetResult {
	var out []AssetResult
	for _, r := range o.Results {
		if !r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the failed results.
func (o *Outcome) Failed() []AssetResult {
	var out []AssetResult
	for _, r := range o.Results {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// Err combines every per-asset failure into one error, or returns nil.
func (o *Outcome) Err() error {
	var err error
	for _, r := range o.Failed() {
		err = multierr.Append(err, fmt.Errorf("asset %s: %w", r.Name, r.Err))
	}
	return err
}
