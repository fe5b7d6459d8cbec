// Package rasterstore is the scaffolding shared by every real raster-backed
// dataset adapter: S3-hosted GeoTIFF download with on-disk caching, an LRU of
// decoded tiles, exponential-backoff retry, and geo-transform point sampling.
package rasterstore

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

func init() {
	godal.RegisterAll()
}

// decodedTile wraps an open GDAL dataset with the geo-transform needed to
// map lat/lon to pixel coordinates. Access to the dataset itself is
// single-threaded per tile.
type decodedTile struct {
	mu     sync.Mutex
	ds     *godal.Dataset
	band   godal.Band
	gt     [6]float64
	width  int
	height int
}

func (t *decodedTile) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ds != nil {
		t.ds.Close()
		t.ds = nil
	}
}

// Store downloads, caches, and decodes raster tiles for one dataset.
type Store struct {
	Dataset    string
	Bucket     string
	Region     string
	RawDataDir string

	maxRetries int
	baseDelay  time.Duration

	s3       *s3.Client
	tiles    *lru.Cache[string, *decodedTile]
	unhealthy atomic.Bool
	quality   atomic.Value // float64
}

// NewStore builds a raster store for one dataset (elevation, elsus, pga,
// clc). lruSize bounds the number of decoded tiles kept in memory at once.
// accessKeyID/secretAccessKey are optional; when both are empty the AWS SDK
// default credential chain (env vars, shared config, instance role) applies.
func NewStore(ctx context.Context, dataset, bucket, region, rawDataDir string, lruSize, maxRetries int, baseDelay time.Duration, accessKeyID, secretAccessKey string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(rawDataDir, dataset), 0o755); err != nil {
		return nil, fmt.Errorf("rasterstore: create raw data dir: %w", err)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("rasterstore: load aws config: %w", err)
	}

	cache, err := lru.NewWithEvict[string, *decodedTile](lruSize, func(_ string, tile *decodedTile) {
		tile.close()
	})
	if err != nil {
		return nil, fmt.Errorf("rasterstore: build lru: %w", err)
	}

	s := &Store{
		Dataset:    dataset,
		Bucket:     bucket,
		Region:     region,
		RawDataDir: rawDataDir,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		s3:         s3.NewFromConfig(cfg),
		tiles:      cache,
	}
	s.quality.Store(1.0)
	return s, nil
}

// Healthy reports whether the adapter has not yet hit an unrecoverable
// auth failure. Once false, it stays false for the life of the process.
func (s *Store) Healthy() bool { return !s.unhealthy.Load() }

// Quality returns the adapter's self-reported data-quality score in [0,1].
// It is metadata only: the risk engine never reads it.
func (s *Store) Quality() float64 { return s.quality.Load().(float64) }

func (s *Store) markUnhealthy() { s.unhealthy.Store(true) }

// rawPath is the on-disk cache location for a tile key under the raw-data
// directory, namespaced by dataset.
func (s *Store) rawPath(key string) string {
	return filepath.Join(s.RawDataDir, s.Dataset, key+".tif")
}

// EnsureTile makes sure the named tile is downloaded and decoded, returning
// its in-memory handle. Safe for concurrent use across cells in one request.
func (s *Store) EnsureTile(ctx context.Context, key string) (*decodedTile, error) {
	if !s.Healthy() {
		return nil, fmt.Errorf("rasterstore %s: adapter marked unhealthy", s.Dataset)
	}
	if tile, ok := s.tiles.Get(key); ok {
		return tile, nil
	}

	path := s.rawPath(key)
	if _, err := os.Stat(path); err != nil {
		if err := s.downloadWithRetry(ctx, key, path); err != nil {
			return nil, err
		}
	}

	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rasterstore %s: decode %s: %w", s.Dataset, key, err)
	}
	structure := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("rasterstore %s: geotransform %s: %w", s.Dataset, key, err)
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		ds.Close()
		return nil, fmt.Errorf("rasterstore %s: %s has no bands", s.Dataset, key)
	}

	tile := &decodedTile{
		ds:     ds,
		band:   bands[0],
		gt:     gt,
		width:  structure.SizeX,
		height: structure.SizeY,
	}
	s.tiles.Add(key, tile)
	return tile, nil
}

// downloadWithRetry fetches a tile from S3 with exponential back-off, up to
// the configured max attempts, multiplier 1x/2x/3x off the base delay.
func (s *Store) downloadWithRetry(ctx context.Context, key, destPath string) error {
	operation := func() error {
		f, err := os.CreateTemp(filepath.Dir(destPath), "download-*.tif")
		if err != nil {
			return backoff.Permanent(fmt.Errorf("rasterstore %s: create temp file: %w", s.Dataset, err))
		}
		defer os.Remove(f.Name())
		defer f.Close()

		downloader := manager.NewDownloader(s.s3)
		_, err = downloader.Download(ctx, f, &s3.GetObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isAuthError(err) {
				s.markUnhealthy()
				return backoff.Permanent(fmt.Errorf("rasterstore %s: auth failure fetching %s: %w", s.Dataset, key, err))
			}
			return fmt.Errorf("rasterstore %s: download %s: %w", s.Dataset, key, err)
		}
		if err := f.Close(); err != nil {
			return backoff.Permanent(err)
		}
		return os.Rename(f.Name(), destPath)
	}

	// 1x/2x/3x multiplier off the base delay across the 3 attempts.
	attempt := 0
	withBackoffDelay := func() error {
		attempt++
		return operation()
	}
	bo := &linearMultiplierBackOff{base: s.baseDelay, attempt: &attempt}
	return backoff.Retry(withBackoffDelay, backoff.WithMaxRetries(bo, uint64(s.maxRetries-1)))
}

// linearMultiplierBackOff waits attempt*base between retries (1x, 2x, 3x...)
// rather than the library's default exponential curve.
type linearMultiplierBackOff struct {
	base    time.Duration
	attempt *int
}

func (b *linearMultiplierBackOff) NextBackOff() time.Duration {
	return time.Duration(*b.attempt) * b.base
}

func (b *linearMultiplierBackOff) Reset() {}

func isAuthError(err error) bool {
	type statusCoder interface{ HTTPStatusCode() int }
	for e := err; e != nil; {
		if sc, ok := e.(statusCoder); ok {
			code := sc.HTTPStatusCode()
			return code == 401 || code == 403
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

// SamplePoint reads the pixel value at (lat, lon) using the tile's
// geo-transform. The bool return is false for out-of-bounds points.
func (s *Store) SamplePoint(ctx context.Context, key string, lat, lon float64) (float64, bool, error) {
	tile, err := s.EnsureTile(ctx, key)
	if err != nil {
		return 0, false, err
	}

	tile.mu.Lock()
	defer tile.mu.Unlock()

	px := int(math.Floor((lon - tile.gt[0]) / tile.gt[1]))
	py := int(math.Floor((lat - tile.gt[3]) / tile.gt[5]))
	if px < 0 || py < 0 || px >= tile.width || py >= tile.height {
		return 0, false, nil
	}

	buf := make([]float64, 1)
	if err := tile.band.Read(px, py, buf, 1, 1); err != nil {
		return 0, false, fmt.Errorf("rasterstore %s: read pixel (%d,%d): %w", s.Dataset, px, py, err)
	}
	return buf[0], true, nil
}

// Close releases every decoded tile still held in the LRU.
func (s *Store) Close() {
	s.tiles.Purge()
}
