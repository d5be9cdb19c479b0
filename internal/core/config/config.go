// Package config reads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type KafkaCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type StoreCfg struct {
	DatabaseURL string
	BatchSize   int
}

type WFSCfg struct {
	URL      string
	TypeName string
	Version  string
	SRSName  string
	Count    int // per-request feature limit, 0 for server default
	Timeout  time.Duration
}

type ResyncCfg struct {
	Enabled bool
	Topic   string
	GroupID string
}

type Config struct {
	Addr             string
	LogLevel         string
	LogConsole       bool
	LogSampleN       int
	MappingFile      string
	MaxDocumentBytes int64
	RedisAddr        string
	ResultCacheTTL   time.Duration
	ResultCacheSize  int
	CacheOpTimeout   time.Duration
	H3Res            int
	MetricsEnabled   bool
	Kafka            KafkaCfg
	Store            StoreCfg
	WFS              WFSCfg
	Resync           ResyncCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 9)
	if res < 0 || res > 15 {
		res = 9
	}
	count := getint("WFS_COUNT", 0)
	if count < 0 {
		count = 0
	}
	batch := getint("STORE_BATCH_SIZE", 500)
	if batch <= 0 {
		batch = 500
	}

	return Config{
		Addr:             getenv("ADDR", ":8090"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogConsole:       getbool("LOG_CONSOLE", false),
		LogSampleN:       getint("LOG_SAMPLE_N", 0),
		MappingFile:      getenv("MAPPING_FILE", ""),
		MaxDocumentBytes: int64(getint("MAX_DOCUMENT_BYTES", 256<<20)),
		RedisAddr:        getenv("REDIS_ADDR", ""),
		ResultCacheTTL:   getduration("RESULT_CACHE_TTL", 24*time.Hour),
		ResultCacheSize:  getint("RESULT_CACHE_SIZE", 32),
		CacheOpTimeout:   getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		H3Res:            res,
		MetricsEnabled:   getbool("METRICS_ENABLED", true),
		Kafka: KafkaCfg{
			Enabled: getbool("PUBLISH_ENABLED", false),
			Brokers: splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_TOPIC", "citygml-buildings"),
		},
		Store: StoreCfg{
			DatabaseURL: getenv("DATABASE_URL", ""),
			BatchSize:   batch,
		},
		WFS: WFSCfg{
			URL:      getenv("WFS_URL", ""),
			TypeName: getenv("WFS_TYPENAME", "bldg:Building"),
			Version:  getenv("WFS_VERSION", "2.0.0"),
			SRSName:  getenv("WFS_SRSNAME", ""),
			Count:    count,
			Timeout:  getduration("WFS_TIMEOUT", 2*time.Minute),
		},
		Resync: ResyncCfg{
			Enabled: getbool("RESYNC_EVENTS_ENABLED", false),
			Topic:   getenv("RESYNC_TOPIC", "citygml-changes"),
			GroupID: getenv("RESYNC_GROUP_ID", "citygml-resync"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
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

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
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

// parse "a:9092, b:9092" into a list, dropping empties
func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
