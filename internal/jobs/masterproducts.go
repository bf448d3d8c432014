package jobs

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"grocerysync/internal/backend"
	"grocerysync/internal/blob"
	"grocerysync/internal/core/models"
	"grocerysync/internal/reconcile"
	"grocerysync/pkg/csvio"
)

// ResetStoreMasterProductsCrawl puts every store master product back at the start of the crawl
// queue by setting its last crawl time to the Unix epoch.
type ResetStoreMasterProductsCrawl struct{}

func (j *ResetStoreMasterProductsCrawl) Name() string { return "reset-store-master-products-crawl" }

func (j *ResetStoreMasterProductsCrawl) Description() string {
	return "set lastCrawlDateTime of every store master product to the Unix epoch"
}

func (j *ResetStoreMasterProductsCrawl) Bind(*flag.FlagSet) {}

func (j *ResetStoreMasterProductsCrawl) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
	cred, err := env.session(ctx)
	if err != nil {
		return reconcile.Summary{}, err
	}
	repo := backend.NewRepository[models.StoreMasterProduct](env.Driver, models.ClassStoreMasterProduct)
	products, err := reconcile.LoadAll(ctx, repo, backend.Criteria{}, cred)
	if err != nil {
		return reconcile.Summary{}, err
	}

	epoch := models.NewDate(time.Unix(0, 0).UTC())
	return reconcile.Run(ctx, env.orchestrator(j.Name(), 0), products, func(ctx context.Context, p models.StoreMasterProduct) reconcile.Result {
		if p.LastCrawlDateTime.Equal(epoch) {
			return reconcile.Done(p.ObjectID, reconcile.NoOp, reconcile.Ops{})
		}
		p.LastCrawlDateTime = epoch
		if err := repo.Update(ctx, p, cred); err != nil {
			return reconcile.Skip(p.ObjectID, err)
		}
		return reconcile.Done(p.ObjectID, reconcile.Updated, reconcile.Ops{Updated: 1})
	}), nil
}

const (
	defaultImageURLPrefix = "https://shop.countdown.co.nz/"
	placeholderMarker     = "default.CD.png"
	placeholderObject     = "coming-soon.jpg"
	imageFolder           = "MasterProducts"
)

var errNoPlaceholder = errors.New("no placeholder image configured")

// UploadImages copies imported master product images into object storage and points imageUrl
// at the copy.
type UploadImages struct {
	ImageURLPrefix  string
	PlaceholderPath string
}

func (j *UploadImages) Name() string { return "upload-images" }

func (j *UploadImages) Description() string {
	return "upload imported master product images to object storage and set imageUrl"
}

func (j *UploadImages) Bind(fs *flag.FlagSet) {
	fs.StringVar(&j.ImageURLPrefix, "imageUrlPrefix", defaultImageURLPrefix, "prefix stripped from image URLs to build object names")
	fs.StringVar(&j.PlaceholderPath, "placeholderImagePath", "", "local image uploaded for products without a real image")
}

func (j *UploadImages) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
	if env.Uploader == nil {
		return reconcile.Summary{}, errors.New("object storage is not configured")
	}
	uploader, err := env.Uploader(ctx)
	if err != nil {
		return reconcile.Summary{}, fmt.Errorf("open object storage: %w", err)
	}
	cred, err := env.session(ctx)
	if err != nil {
		return reconcile.Summary{}, err
	}
	repo := backend.NewRepository[models.MasterProduct](env.Driver, models.ClassMasterProduct)
	products, err := reconcile.LoadAll(ctx, repo, backend.Criteria{}.Without("imageUrl"), cred)
	if err != nil {
		return reconcile.Summary{}, err
	}
	env.Log.Info("master products without image", "count", len(products))

	up := &imageUploader{uploader: uploader, fetcher: env.Fetcher}
	return reconcile.Run(ctx, env.orchestrator(j.Name(), 0), products, func(ctx context.Context, p models.MasterProduct) reconcile.Result {
		source := strings.TrimSpace(p.ImportedImageURL)
		if source == "" {
			return reconcile.Skip(p.ObjectID, fmt.Errorf("master product has no imported image: %w", reconcile.ErrInvalidRow))
		}
		objectPath := path.Join(imageFolder, j.objectName(source))
		if strings.Contains(source, placeholderMarker) {
			if j.PlaceholderPath == "" {
				return reconcile.Skip(p.ObjectID, fmt.Errorf("%s: %w: %w", source, errNoPlaceholder, reconcile.ErrInvalidRow))
			}
			source = j.PlaceholderPath
			objectPath = path.Join(imageFolder, placeholderObject)
		}

		url, err := up.upload(ctx, objectPath, source)
		if err != nil {
			return reconcile.Skip(p.ObjectID, err)
		}
		p.ImageURL = url
		if err := repo.Update(ctx, p, cred); err != nil {
			return reconcile.Skip(p.ObjectID, err)
		}
		return reconcile.Done(p.ObjectID, reconcile.Updated, reconcile.Ops{Updated: 1})
	}), nil
}

// objectName drops the configured prefix and flattens the rest into one lower case file name.
func (j *UploadImages) objectName(imageURL string) string {
	name := strings.TrimPrefix(imageURL, j.ImageURLPrefix)
	name = strings.TrimLeft(name, "/")
	return strings.ToLower(strings.ReplaceAll(name, "/", "-"))
}

// imageUploader uploads each object path at most once per run. Concurrent rows asking for
// the same path share one upload.
type imageUploader struct {
	uploader blob.Uploader
	fetcher  csvio.Fetcher

	group singleflight.Group
	done  sync.Map
}

func (u *imageUploader) upload(ctx context.Context, objectPath, source string) (string, error) {
	if url, ok := u.done.Load(objectPath); ok {
		return url.(string), nil
	}
	v, err, _ := u.group.Do(objectPath, func() (interface{}, error) {
		if url, ok := u.done.Load(objectPath); ok {
			return url, nil
		}
		src, err := csvio.Open(ctx, source, u.fetcher)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", source, err)
		}
		defer src.Close()

		url, err := u.uploader.Upload(ctx, objectPath, blob.ContentTypeFor(objectPath), src)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", objectPath, err)
		}
		u.done.Store(objectPath, url)
		return url, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
