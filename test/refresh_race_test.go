//go:build integration
// +build integration

package test

import (
	"context"
	"sync"
	"testing"

	goRotate "github.com/MrEthical07/goRotate"
)

// Two engines sharing Redis behave like two service replicas receiving the
// same browser's duplicate refresh.
func TestRefreshRaceAcrossReplicasSingleRotation(t *testing.T) {
	ctx := context.Background()
	_, rdb := newMiniredis(t)
	replicas := []*goRotate.Engine{newRedisEngine(t, rdb), newRedisEngine(t, rdb)}

	issued, err := replicas[0].Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	const perReplica = 16
	start := make(chan struct{})
	var wg sync.WaitGroup

	results := make(chan *goRotate.TokenPair, perReplica*len(replicas))
	errs := make(chan error, perReplica*len(replicas))
	for _, e := range replicas {
		for i := 0; i < perReplica; i++ {
			wg.Add(1)
			go func(e *goRotate.Engine) {
				defer wg.Done()
				<-start
				pair, err := e.Refresh(ctx, issued.AccessToken, issued.RefreshToken)
				if err != nil {
					errs <- err
					return
				}
				results <- pair
			}(e)
		}
	}

	close(start)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected refresh error: %v", err)
	}

	distinct := map[string]struct{}{}
	for pair := range results {
		distinct[pair.RefreshToken] = struct{}{}
	}
	if len(distinct) != 1 {
		t.Fatalf("expected one rotated pair across replicas, got %d", len(distinct))
	}

	var rotations uint64
	for _, e := range replicas {
		rotations += e.MetricsSnapshot().Counters[goRotate.MetricRefreshSuccess]
	}
	if rotations != 1 {
		t.Fatalf("expected exactly one rotation, got %d", rotations)
	}
}

func TestRefreshChainAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	_, rdb := newMiniredis(t)
	a, b := newRedisEngine(t, rdb), newRedisEngine(t, rdb)

	pair, err := a.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		e := a
		if i%2 == 1 {
			e = b
		}
		next, err := e.Refresh(ctx, pair.AccessToken, pair.RefreshToken)
		if err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
		if next.RefreshToken == pair.RefreshToken {
			t.Fatalf("refresh %d did not rotate", i)
		}
		pair = next
	}

	if err := b.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := a.Refresh(ctx, pair.AccessToken, pair.RefreshToken); err == nil {
		t.Fatal("refresh after logout on another replica must fail")
	}
}
