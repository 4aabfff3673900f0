// Package previews publishes rendered plot images and records where they
// live on each implementation row.
package previews

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/yungbote/pyplots-catalog/internal/catalog/layout"
	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
	"github.com/yungbote/pyplots-catalog/internal/platform/gcp"
)

const ArtifactName = "plot.png"

type Registry interface {
	ListImplementations(ctx context.Context, filter catalog.ImplementationFilter) iter.Seq2[*catalog.Implementation, error]
	SetPreviewURL(ctx context.Context, id uuid.UUID, url string) error
}

type Options struct {
	ArtifactsDir string
	// Local records the artifact's absolute path instead of uploading it.
	Local  bool
	DryRun bool
	Filter catalog.ImplementationFilter
}

type Failure struct {
	Key catalog.Key
	Err error
}

type Report struct {
	Published []catalog.Key
	Unchanged int
	Missing   []catalog.Key
	Failures  []Failure
}

type Publisher struct {
	reg    Registry
	bucket gcp.BucketService
	opts   Options
	log    *logger.Logger
}

// New builds a publisher. bucket may be nil when opts.Local is set.
func New(reg Registry, bucket gcp.BucketService, baseLog *logger.Logger, opts Options) *Publisher {
	if opts.ArtifactsDir == "" {
		opts.ArtifactsDir = "artifacts"
	}
	return &Publisher{reg: reg, bucket: bucket, opts: opts, log: baseLog.With("service", "PreviewPublisher")}
}

// ArtifactPath is where a rendering run for key leaves its image.
func ArtifactPath(dir string, key catalog.Key) string {
	return filepath.Join(dir, key.SpecID, layout.Stem(key.LibraryID, key.Variant), ArtifactName)
}

// ObjectKey is the bucket key of the published image.
func ObjectKey(key catalog.Key) string {
	variant := key.Variant
	if variant == "" {
		variant = catalog.DefaultVariant
	}
	return path.Join(key.SpecID, string(key.LibraryID), variant, ArtifactName)
}

func (p *Publisher) Run(ctx context.Context) (*Report, error) {
	if !p.opts.Local && p.bucket == nil {
		return nil, catalog.Errorf(catalog.CodeValidation, "previews.run", "", "no bucket configured; use local mode or set previews.bucket")
	}
	rep := &Report{}
	for impl, err := range p.reg.ListImplementations(ctx, p.opts.Filter) {
		if err != nil {
			return rep, err
		}
		key := impl.Key()
		artifact := ArtifactPath(p.opts.ArtifactsDir, key)
		info, err := os.Stat(artifact)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				rep.Missing = append(rep.Missing, key)
				p.log.Debug("No rendered artifact", "key", key.String(), "path", artifact)
				continue
			}
			p.failed(rep, key, catalog.Wrap(catalog.CodeMissingFile, "previews.stat", artifact, err))
			continue
		}

		url, uploaded, err := p.publish(ctx, key, artifact, info.Size())
		if err != nil {
			p.failed(rep, key, err)
			continue
		}
		recorded := impl.PreviewURL != nil && *impl.PreviewURL == url
		if recorded && !uploaded {
			rep.Unchanged++
			continue
		}
		if p.opts.DryRun || recorded {
			rep.Published = append(rep.Published, key)
			continue
		}
		if err := p.reg.SetPreviewURL(ctx, impl.ID, url); err != nil {
			return rep, err
		}
		rep.Published = append(rep.Published, key)
		p.log.Info("Preview published", "key", key.String(), "url", url)
	}
	return rep, nil
}

// publish returns the preview URL for key and whether the artifact was (or,
// in dry-run mode, would be) uploaded. An object already in the bucket with
// the artifact's size is left alone.
func (p *Publisher) publish(ctx context.Context, key catalog.Key, artifact string, size int64) (string, bool, error) {
	if p.opts.Local {
		abs, err := filepath.Abs(artifact)
		if err != nil {
			return "", false, catalog.Wrap(catalog.CodeStorage, "previews.local", artifact, err)
		}
		return filepath.ToSlash(abs), false, nil
	}
	objectKey := ObjectKey(key)
	url := p.bucket.GetPublicURL(objectKey)
	attrs, err := p.bucket.GetObjectAttrs(ctx, objectKey)
	switch {
	case errors.Is(err, gcp.ErrObjectNotFound):
	case err != nil:
		return "", false, catalog.Wrap(catalog.CodeStorage, "previews.attrs", objectKey, err)
	case attrs.Size == size:
		p.log.Debug("Preview already in bucket", "key", key.String(), "object", objectKey)
		return url, false, nil
	}
	if p.opts.DryRun {
		return url, true, nil
	}
	f, err := os.Open(artifact)
	if err != nil {
		return "", false, catalog.Wrap(catalog.CodeMissingFile, "previews.open", artifact, err)
	}
	defer f.Close()
	if err := p.bucket.UploadFile(ctx, objectKey, f); err != nil {
		return "", false, catalog.Wrap(catalog.CodeStorage, "previews.upload", objectKey, err)
	}
	return url, true, nil
}

func (p *Publisher) failed(rep *Report, key catalog.Key, err error) {
	rep.Failures = append(rep.Failures, Failure{Key: key, Err: err})
	p.log.Warn("Preview not published", "key", key.String(), "error", err)
}
