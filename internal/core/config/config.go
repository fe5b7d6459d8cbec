package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr     string
	LogLevel string

	RedisAddr    string
	KafkaBrokers string
	KafkaTopic   string

	H3Res    int
	H3ResMin int
	H3ResMax int

	CacheOpTimeout      time.Duration
	CacheTTLDefault     time.Duration
	CacheTTLOvr         map[string]time.Duration
	CacheFillMaxWorkers int
	CacheFillQueue      int

	CacheFlushInterval time.Duration
	CacheDataDir       string
	RawDataDir         string

	TileCacheBudgetMB int
	TileCacheTTL      time.Duration
	TileCacheSweep    time.Duration

	UseRealData      bool
	NASAPrecipURL    string
	PrecipTimeout    time.Duration
	PrecipChunkSize  int
	PrecipMaxRetries int

	AdapterMaxRetries    int
	AdapterBaseDelay     time.Duration
	ElevationS3Bucket    string
	ElevationS3Region    string
	ElsusS3Bucket        string
	PGAS3Bucket          string
	LandCoverS3Bucket    string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string

	DBDSN string
}

func FromEnv() Config {
	res := getint("H3_RES", 6)
	minRes := getint("H3_RES_MIN", res)
	maxRes := getint("H3_RES_MAX", res)

	if minRes < 0 {
		minRes = 0
	}
	if maxRes > 15 {
		maxRes = 15
	}
	if minRes > maxRes {
		minRes, maxRes = res, res
	}

	return Config{
		Addr:     getenv("ADDR", ":8090"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		RedisAddr:    getenv("REDIS_ADDR", ""),
		KafkaBrokers: getenv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:   getenv("KAFKA_INVALIDATION_TOPIC", "dataset-invalidation"),

		H3Res:    res,
		H3ResMin: minRes,
		H3ResMax: maxRes,

		CacheOpTimeout:      getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheTTLDefault:     getduration("CACHE_TTL_DEFAULT", 60*time.Second),
		CacheTTLOvr:         parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
		CacheFillMaxWorkers: getint("CACHE_FILL_MAX_WORKERS", 8),
		CacheFillQueue:      getint("CACHE_FILL_QUEUE", 64),

		CacheFlushInterval: getduration("CACHE_FLUSH_INTERVAL", 60*time.Second),
		CacheDataDir:       getenv("CACHE_DATA_DIR", "./data"),
		RawDataDir:         getenv("RAW_DATA_DIR", "./data/raw"),

		TileCacheBudgetMB: getint("TILE_CACHE_BUDGET_MB", 200),
		TileCacheTTL:      getduration("TILE_CACHE_TTL", 10*time.Minute),
		TileCacheSweep:    getduration("TILE_CACHE_SWEEP", 2*time.Minute),

		UseRealData:      getbool("USE_REAL_DATA", false),
		NASAPrecipURL:    getenv("NASA_PRECIP_URL", "http://localhost:9100"),
		PrecipTimeout:    getduration("PRECIP_TIMEOUT", 120*time.Second),
		PrecipChunkSize:  getint("PRECIP_CHUNK_SIZE", 5000),
		PrecipMaxRetries: getint("PRECIP_MAX_RETRIES", 2),

		AdapterMaxRetries:  getint("ADAPTER_MAX_RETRIES", 3),
		AdapterBaseDelay:   getduration("ADAPTER_BASE_DELAY", 1500*time.Millisecond),
		ElevationS3Bucket:  getenv("ELEVATION_S3_BUCKET", "copernicus-dem-30m"),
		ElevationS3Region:  getenv("ELEVATION_S3_REGION", "eu-central-1"),
		ElsusS3Bucket:      getenv("ELSUS_S3_BUCKET", "geolens-elsus-rasters"),
		PGAS3Bucket:        getenv("PGA_S3_BUCKET", "geolens-pga-rasters"),
		LandCoverS3Bucket:  getenv("CLC_S3_BUCKET", "geolens-clc-rasters"),
		AWSAccessKeyID:     getenv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getenv("AWS_SECRET_ACCESS_KEY", ""),

		DBDSN: getenv("DB_DSN", ""),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "layer=5m,other=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	parts := strings.SplitSeq(s, ",")
	for p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
