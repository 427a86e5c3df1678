package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"release-sync/core/reconcile"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Document is the machine readable summary of a run.
type Document struct {
	RunID      string       `json:"run_id" yaml:"run_id"`
	Repository string       `json:"repository" yaml:"repository"`
	Tag        string       `json:"tag" yaml:"tag"`
	ReleaseID  int64        `json:"release_id" yaml:"release_id"`
	ReleaseURL string       `json:"release_url,omitempty" yaml:"release_url,omitempty"`
	Created    bool         `json:"release_created" yaml:"release_created"`
	Assets     []AssetEntry `json:"assets" yaml:"assets"`
	Summary    Summary      `json:"summary" yaml:"summary"`
}

// AssetEntry is the result of one desired asset.
type AssetEntry struct {
	Name     string `json:"name" yaml:"name"`
	Action   string `json:"action" yaml:"action"`
	Status   string `json:"status" yaml:"status"`
	AssetID  int64  `json:"asset_id,omitempty" yaml:"asset_id,omitempty"`
	Size     int64  `json:"size" yaml:"size"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary counts results by status.
type Summary struct {
	Created  int `json:"created" yaml:"created"`
	Replaced int `json:"replaced" yaml:"replaced"`
	Skipped  int `json:"skipped" yaml:"skipped"`
	Failed   int `json:"failed" yaml:"failed"`
}

// NewDocument builds the report document of an outcome.
func NewDocument(runID string, o *reconcile.Outcome) Document {
	doc := Document{
		RunID:      runID,
		Repository: o.Release.Repository.String(),
		Tag:        o.Release.Tag,
		ReleaseID:  o.Release.ID,
		ReleaseURL: o.Release.HTMLURL,
		Created:    o.Created,
		Assets:     make([]AssetEntry, 0, len(o.Results)),
	}

	for _, r := range o.Results {
		entry := AssetEntry{
			Name:     r.Name,
			Action:   string(r.Action),
			Status:   string(r.Status),
			AssetID:  r.AssetID,
			Size:     r.Size,
			Attempts: r.Attempts,
		}
		if r.Err != nil {
			entry.Error = r.Err.Error()
		}
		doc.Assets = append(doc.Assets, entry)

		switch r.Status {
		case reconcile.StatusCreated:
			doc.Summary.Created++
		case reconcile.StatusReplaced:
			doc.Summary.Replaced++
		case reconcile.StatusSkipped:
			doc.Summary.Skipped++
		case reconcile.StatusFailed:
			doc.Summary.Failed++
		}
	}
	return doc
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}

// RenderPlan writes the planned actions as a table.
func RenderPlan(w io.Writer, plan *reconcile.Plan) {
	release := fmt.Sprintf("%s@%s", plan.Release.Repository, plan.Release.Tag)
	if plan.ReleaseExists {
		fmt.Fprintf(w, "Release %s (id %d)\n", release, plan.Release.ID)
	} else {
		fmt.Fprintf(w, "Release %s will be created\n", release)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Asset", "Action", "Size", "Reason"})
	for _, a := range plan.Actions {
		t.AppendRow(table.Row{a.Name, a.Type, humanize.IBytes(uint64(a.Asset.Size)), a.Reason})
	}
	s := plan.Summary
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d assets", len(plan.Actions)),
		fmt.Sprintf("%d upload, %d replace, %d skip", s.Uploads, s.Replaces, s.Skips),
		"",
		fmt.Sprintf("%d untouched", s.Untouched),
	})
	t.Render()
}

// RenderOutcome writes the per-asset results as a table.
func RenderOutcome(w io.Writer, o *reconcile.Outcome) {
	verb := "Updated"
	if o.Created {
		verb = "Created"
	}
	fmt.Fprintf(w, "%s release %s@%s (id %d)\n", verb, o.Release.Repository, o.Release.Tag, o.Release.ID)
	if o.Release.HTMLURL != "" {
		fmt.Fprintln(w, o.Release.HTMLURL)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Asset", "Status", "Size", "Attempts", "Error"})
	for _, r := range o.Results {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		t.AppendRow(table.Row{r.Name, r.Status, humanize.IBytes(uint64(r.Size)), r.Attempts, msg})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d assets", len(o.Results)),
		fmt.Sprintf("%d ok, %d failed", len(o.Succeeded()), len(o.Failed())),
		"", "", "",
	})
	t.Render()
}

// WriteFile serializes v to path. The format follows the extension: .json, .yaml or .yml.
func WriteFile(afs afero.Fs, path string, v any) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(v, "", "  ")
		data = append(data, '\n')
	case ".yaml", ".yml":
		data, err = yaml.Marshal(v)
	default:
		return fmt.Errorf("unsupported report format %q: use .json, .yaml or .yml", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := afs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := afero.WriteFile(afs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
