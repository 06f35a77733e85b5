package gallery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gallery-index/internal/apperr"
	"gallery-index/internal/cache"
	"gallery-index/internal/logging"
	"gallery-index/internal/media"
	"gallery-index/internal/mediatypes"
	"gallery-index/internal/metrics"
	"gallery-index/internal/remote"
	"gallery-index/internal/workers"
)

// maxResizeWorkers caps concurrent codec runs.
const maxResizeWorkers = 8

// Variant is the bytes of one size variant of an image. Degraded variants
// are the original bytes, served because resizing was not possible.
type Variant struct {
	Data        []byte
	ContentType string
	Degraded    bool
}

// VariantCache serves resized images, caching successful resizes.
type VariantCache struct {
	store remote.Store
	codec media.Codec
	cache *cache.Cache
	ttl   time.Duration

	// sem bounds CPU-heavy resizes
	sem chan struct{}
}

// NewVariantCache creates a VariantCache. codec may be nil, in which case
// every variant is degraded.
func NewVariantCache(store remote.Store, codec media.Codec, c *cache.Cache, ttl time.Duration) *VariantCache {
	return &VariantCache{
		store: store,
		codec: codec,
		cache: c,
		ttl:   ttl,
		sem:   make(chan struct{}, workers.ForCPU(maxResizeWorkers)),
	}
}

// GetVariant returns imageID resized to the named preset. quality overrides
// the preset quality when in 1..100; zero selects the preset quality. An
// empty preset selects the default.
func (v *VariantCache) GetVariant(ctx context.Context, imageID, preset string, quality int) (*Variant, error) {
	name, p, ok := mediatypes.LookupPreset(preset)
	if !ok {
		return nil, apperr.Invalid("size", fmt.Sprintf("unknown size %q", preset))
	}
	switch {
	case quality == 0:
		quality = p.Quality
	case quality < 1 || quality > 100:
		return nil, apperr.Invalid("quality", "must be between 1 and 100")
	}

	key := cache.Key(cache.EndpointImage, map[string]string{
		"id":      imageID,
		"size":    string(name),
		"quality": strconv.Itoa(quality),
	})

	res, err := v.cache.GetOrLoad(ctx, key, v.ttl, func(ctx context.Context) (any, error) {
		return v.generate(ctx, imageID, name, media.Options{
			Width:   p.Width,
			Height:  p.Height,
			Quality: quality,
		})
	})
	if err != nil {
		return nil, err
	}
	return res.(*Variant), nil
}

// generate downloads and resizes one variant. A degraded result is returned
// wrapped in cache.NoStore.
func (v *VariantCache) generate(ctx context.Context, imageID string, preset mediatypes.SizePreset, opts media.Options) (any, error) {
	start := time.Now()
	label := string(preset)

	data, err := v.store.GetBytes(ctx, imageID)
	if err != nil {
		if !apperr.IsNotFound(err) {
			metrics.VariantGenerationsTotal.WithLabelValues(label, "error").Inc()
		}
		return nil, err
	}

	out, err := v.resize(ctx, data, opts)
	metrics.VariantGenerationDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		codecName := "none"
		if v.codec != nil {
			codecName = v.codec.Name()
		}
		logging.Warn("variant %s/%s: serving original bytes: %v", imageID, preset, err)
		metrics.VariantGenerationsTotal.WithLabelValues(label, "degraded").Inc()
		metrics.VariantDegradedTotal.WithLabelValues(codecName).Inc()

		return cache.NoStore(&Variant{
			Data:        data,
			ContentType: media.SniffContentType(data),
			Degraded:    true,
		}), nil
	}

	metrics.VariantGenerationsTotal.WithLabelValues(label, "success").Inc()
	return &Variant{Data: out, ContentType: media.JPEGContentType}, nil
}

func (v *VariantCache) resize(ctx context.Context, data []byte, opts media.Options) ([]byte, error) {
	if v.codec == nil || !v.codec.Available() {
		return nil, media.ErrCodecUnavailable
	}

	select {
	case v.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-v.sem }()

	return v.codec.Resize(ctx, data, opts)
}
