// Command gorotate-loadtest drives an Engine over Redis (or miniredis) and
// reports validate and refresh latency, plus a duplicate-refresh storm that
// exercises coalescing and idempotent replay.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goRotate "github.com/MrEthical07/goRotate"
	"github.com/MrEthical07/goRotate/store/redisstore"
)

type ownerState struct {
	owner string
	pair  *goRotate.TokenPair
	mu    sync.Mutex
}

func main() {
	var (
		owners      = flag.Int("owners", 2000, "number of owners to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		storm       = flag.Int("storm", 256, "concurrent duplicate refreshes of one pair")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "key prefix")
	)
	flag.Parse()

	if *owners <= 0 || *concurrency <= 0 || *ops <= 0 || *storm <= 0 {
		fmt.Fprintln(os.Stderr, "owners, concurrency, ops, and storm must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	engine, err := newEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]ownerState, *owners)
	fmt.Printf("issuing %d pairs...\n", *owners)
	startSeed := time.Now()
	for i := range states {
		owner := fmt.Sprintf("owner-%d", i)
		pair, err := engine.Issue(ctx, owner)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = ownerState{owner: owner, pair: pair}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		token := st.pair.AccessToken
		st.mu.Unlock()
		_, err := engine.ValidateAccess(ctx, token)
		return err
	})

	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		next, err := engine.Refresh(ctx, st.pair.AccessToken, st.pair.RefreshToken)
		if err != nil {
			return err
		}
		st.pair = next
		return nil
	})

	stormStats, distinct := runStorm(ctx, engine, &states[0], *storm)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	printStats("storm", stormStats)
	fmt.Printf("storm: distinct pairs returned=%d (want 1)\n", distinct)

	snap := engine.MetricsSnapshot()
	fmt.Printf("counters: fast_path=%d idempotent=%d coalesced=%d lock_wait=%d contention=%d cache_errors=%d\n",
		snap.Counters[goRotate.MetricRefreshFastPath],
		snap.Counters[goRotate.MetricRefreshIdempotentHit],
		snap.Counters[goRotate.MetricRefreshCoalesced],
		snap.Counters[goRotate.MetricLockWait],
		snap.Counters[goRotate.MetricLockContention],
		snap.Counters[goRotate.MetricCacheError],
	)
}

func newEngine(client redis.UniversalClient, prefix string) (*goRotate.Engine, error) {
	cfg := goRotate.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("loadtest-access-secret-0123456789")
	cfg.JWT.RefreshPrivateKey = []byte("loadtest-refresh-secret-012345678")
	// Cheap hashing keeps the run about rotation, not argon2.
	cfg.Hasher = goRotate.HasherConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	cfg.Cache.KeyPrefix = prefix
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	return goRotate.New().
		WithConfig(cfg).
		WithStore(redisstore.New(client, redisstore.WithPrefix(prefix+":rt"))).
		WithRedis(client).
		Build()
}

// runStorm sends n identical refreshes at once and counts distinct results.
func runStorm(ctx context.Context, engine *goRotate.Engine, st *ownerState, n int) (phaseStats, int) {
	var (
		wg        sync.WaitGroup
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, n)
		seen      = map[string]struct{}{}
		start     = make(chan struct{})
	)

	t0 := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			s := time.Now()
			pair, err := engine.Refresh(ctx, st.pair.AccessToken, st.pair.RefreshToken)
			d := time.Since(s)

			mu.Lock()
			defer mu.Unlock()
			latencies = append(latencies, d)
			if err != nil {
				failures++
				return
			}
			seen[pair.RefreshToken] = struct{}{}
		}()
	}
	close(start)
	wg.Wait()

	return computeStats(time.Since(t0), latencies, failures), len(seen)
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
