package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
)

// Keys written by the metrics collection pipeline.
const (
	keyMetricsSnapshot  = "metrics:snapshot"
	keyMetricsProcesses = "metrics:processes"
	keyDNSConfig        = "dns:config"
	keyDNSStatsPrefix   = "dns:stats:"
)

// MetricsSource implements domain.MetricsSource over the pipeline's
// cached snapshots.
type MetricsSource struct {
	rdb     *goredis.Client
	breaker *gobreaker.CircuitBreaker
}

func NewMetricsSource(rdb *goredis.Client) *MetricsSource {
	return &MetricsSource{
		rdb:     rdb,
		breaker: newBreaker("redis_metrics"),
	}
}

func (m *MetricsSource) GetAllMetrics(ctx context.Context) (domain.MetricsSnapshot, error) {
	raw, err := m.breaker.Execute(func() (any, error) {
		return m.rdb.Get(ctx, keyMetricsSnapshot).Result()
	})
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("failed to fetch metrics snapshot: %w", err)
	}

	var snap domain.MetricsSnapshot
	if err := json.Unmarshal([]byte(raw.(string)), &snap); err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("malformed metrics snapshot: %w", err)
	}
	return snap, nil
}

func (m *MetricsSource) GetProcessMetrics(ctx context.Context) ([]domain.ProcessMetrics, error) {
	raw, err := m.breaker.Execute(func() (any, error) {
		return m.rdb.Get(ctx, keyMetricsProcesses).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch process metrics: %w", err)
	}

	var procs []domain.ProcessMetrics
	if err := json.Unmarshal([]byte(raw.(string)), &procs); err != nil {
		return nil, fmt.Errorf("malformed process metrics: %w", err)
	}
	return procs, nil
}

// DNSStatsSource implements domain.DNSStatsSource over the DNS cache's
// per-analysis hit/miss counters.
type DNSStatsSource struct {
	rdb     *goredis.Client
	breaker *gobreaker.CircuitBreaker
}

func NewDNSStatsSource(rdb *goredis.Client) *DNSStatsSource {
	return &DNSStatsSource{
		rdb:     rdb,
		breaker: newBreaker("redis_dns"),
	}
}

func (d *DNSStatsSource) GetConfig(ctx context.Context) (domain.DNSConfig, error) {
	raw, err := d.breaker.Execute(func() (any, error) {
		enabled, err := d.rdb.Get(ctx, keyDNSConfig).Result()
		if err == goredis.Nil {
			return "0", nil
		}
		return enabled, err
	})
	if err != nil {
		return domain.DNSConfig{}, fmt.Errorf("failed to fetch DNS config: %w", err)
	}
	return domain.DNSConfig{Enabled: raw.(string) == "1"}, nil
}

func (d *DNSStatsSource) GetAnalysisStats(ctx context.Context, analysisID string) (domain.DNSStats, error) {
	raw, err := d.breaker.Execute(func() (any, error) {
		return d.rdb.HGetAll(ctx, keyDNSStatsPrefix+analysisID).Result()
	})
	if err != nil {
		return domain.DNSStats{}, fmt.Errorf("failed to fetch DNS stats: %w", err)
	}

	fields := raw.(map[string]string)
	hits, _ := strconv.ParseInt(fields["hits"], 10, 64)
	misses, _ := strconv.ParseInt(fields["misses"], 10, 64)
	return domain.DNSStats{Hits: hits, Misses: misses}, nil
}
