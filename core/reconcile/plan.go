package reconcile

import "fmt"

// PlanOptions controls how collisions with existing assets are resolved.
type PlanOptions struct {
	// SkipUnchanged skips a replacement when the existing asset is fully uploaded and
	// reports the same digest and size as the local file. Assets without a reported
	// digest are always replaced.
	SkipUnchanged bool
}

// BuildPlan diffs the desired set against the release's current assets.
// Every desired asset yields exactly one action; current assets outside the desired set
// are never touched, since sibling jobs may contribute them to the same release.
func BuildPlan(release Release, desired DesiredAssetSet, opts PlanOptions) Plan {
	current := make(map[string]Asset, len(release.Assets))
	for _, a := range release.Assets {
		if _, dup := current[a.Name]; !dup {
			current[a.Name] = a
		}
	}

	plan := Plan{
		Release:       release,
		ReleaseExists: release.ID != 0,
		Actions:       make([]Action, 0, desired.Len()),
	}

	for _, want := range desired.All() {
		existing, ok := current[want.Name]
		switch {
		case !ok:
			plan.Actions = append(plan.Actions, Action{
				Type:   ActionUpload,
				Name:   want.Name,
				Asset:  want,
				Reason: "not present on release",
			})
			plan.Summary.Uploads++
		case opts.SkipUnchanged && unchanged(existing, want):
			plan.Actions = append(plan.Actions, Action{
				Type:       ActionSkip,
				Name:       want.Name,
				Asset:      want,
				ExistingID: existing.ID,
				Reason:     "unchanged",
			})
			plan.Summary.Skips++
		default:
			plan.Actions = append(plan.Actions, Action{
				Type:       ActionReplace,
				Name:       want.Name,
				Asset:      want,
				ExistingID: existing.ID,
				Reason:     replaceReason(existing),
			})
			plan.Summary.Replaces++
		}
	}

	for name := range current {
		if _, wanted := desired.Get(name); !wanted {
			plan.Summary.Untouched++
		}
	}

	return plan
}

func unchanged(existing Asset, want DesiredAsset) bool {
	return existing.State == AssetUploaded &&
		existing.Digest != "" &&
		existing.Digest == want.Digest &&
		existing.Size == want.Size
}

func replaceReason(existing Asset) string {
	if existing.State != "" && existing.State != AssetUploaded {
		return fmt.Sprintf("existing asset %d is %s", existing.ID, existing.State)
	}
	return fmt.Sprintf("existing asset %d has the same name", existing.ID)
}
