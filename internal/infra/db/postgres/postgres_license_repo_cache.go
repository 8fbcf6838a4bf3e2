package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/repository"
	"tw-license-service/internal/infra/metrics"
	red "tw-license-service/internal/infra/redis"
)

var (
	_ repository.LicenseRepository = (*licenseRepoCacheDecorator)(nil)
	_ repository.CacheEvicter      = (*licenseRepoCacheDecorator)(nil)
)

// licenseRepoCacheDecorator serves FindByKey outside transactions from Redis.
// Reads inside a tx always hit the database.
type licenseRepoCacheDecorator struct {
	repository.LicenseRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewLicenseRepoCacheDecorator(inner repository.LicenseRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.LicenseRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "license_cache").Logger()
	return &licenseRepoCacheDecorator{
		LicenseRepository: inner,
		cache:             cache,
		ttl:               ttl,
		log:               &l,
	}
}

func licenseCacheKey(key string) string { return "license:" + key }

func (d *licenseRepoCacheDecorator) FindByKey(ctx context.Context, tx repository.Tx, key string) (*model.License, error) {
	if tx != nil {
		return d.LicenseRepository.FindByKey(ctx, tx, key)
	}
	ck := licenseCacheKey(key)
	val, err := d.cache.Get(ctx, ck)
	if err == nil {
		var lic model.License
		if json.Unmarshal([]byte(val), &lic) == nil {
			metrics.IncCacheRequest("license", "hit")
			return &lic, nil
		}
		d.log.Warn().Msg("dropping undecodable cache entry")
	} else if !errors.Is(err, red.Nil) {
		d.log.Warn().Err(err).Msg("license cache read failed")
	}

	metrics.IncCacheRequest("license", "miss")
	lic, err := d.LicenseRepository.FindByKey(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(lic); err == nil {
		if err := d.cache.Set(ctx, ck, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Msg("license cache write failed")
		}
	}
	return lic, nil
}

func (d *licenseRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, l *model.License) error {
	if err := d.LicenseRepository.Create(ctx, tx, l); err != nil {
		return err
	}
	d.invalidate(ctx, l.Key)
	return nil
}

func (d *licenseRepoCacheDecorator) UpdateStatus(ctx context.Context, tx repository.Tx, key string, to model.LicenseStatus, now time.Time, from ...model.LicenseStatus) (bool, error) {
	changed, err := d.LicenseRepository.UpdateStatus(ctx, tx, key, to, now, from...)
	if changed {
		d.invalidate(ctx, key)
	}
	return changed, err
}

func (d *licenseRepoCacheDecorator) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) ([]string, error) {
	keys, err := d.LicenseRepository.ExpireDue(ctx, tx, now)
	if len(keys) > 0 {
		d.invalidate(ctx, keys...)
	}
	return keys, err
}

// Evict drops cached entries a caller found to be stale. A read that raced an
// invalidation can write an old record back after the Del.
func (d *licenseRepoCacheDecorator) Evict(ctx context.Context, keys ...string) {
	d.invalidate(ctx, keys...)
}

func (d *licenseRepoCacheDecorator) invalidate(ctx context.Context, keys ...string) {
	cks := make([]string, 0, len(keys))
	for _, k := range keys {
		cks = append(cks, licenseCacheKey(k))
	}
	if err := d.cache.Del(ctx, cks...); err != nil {
		d.log.Warn().Err(err).Int("keys", len(cks)).Msg("license cache invalidation failed")
	}
}
