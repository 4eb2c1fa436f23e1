package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-discount-backend/internal/domain"
)

func TestCampaignService_Create_Validation(t *testing.T) {
	db := newTestDB(t)
	svc := NewCampaignService(db, nil, time.Hour)

	cases := []struct {
		name  string
		in    CreateCampaignInput
		field string
	}{
		{"percent too high", CreateCampaignInput{Owner: "brandA", Name: "x", Percentage: 150, Quota: 1}, "percentage"},
		{"percent negative", CreateCampaignInput{Owner: "brandA", Name: "x", Percentage: -1, Quota: 1}, "percentage"},
		{"quota zero", CreateCampaignInput{Owner: "brandA", Name: "x", Percentage: 10, Quota: 0}, "quota"},
		{"name blank", CreateCampaignInput{Owner: "brandA", Name: " ", Percentage: 10, Quota: 1}, "name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Create(context.Background(), tc.in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("want field %q, got %+v", tc.field, ve)
			}
		})
	}

	n, _, _ := svc.CatalogFingerprint(context.Background())
	if n != 0 {
		t.Fatalf("rejected input must not persist anything, catalog has %d", n)
	}
}

// Create campaign {brandA, Fall Sale, 80, 2} -> available 2.
func TestCampaignService_Create_FallSale(t *testing.T) {
	db := newTestDB(t)
	cache := newFakeCache()
	svc := NewCampaignService(db, cache, time.Hour)
	ctx := context.Background()

	c, replayed, err := svc.Create(ctx, CreateCampaignInput{Owner: "brandA", Name: "Fall Sale", Percentage: 80, Quota: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if replayed {
		t.Fatalf("first create must not be a replay")
	}
	if c.ID == 0 || c.Consumed != 0 || c.Available() != 2 || c.Owner != "brandA" {
		t.Fatalf("unexpected campaign %+v", c)
	}
	if cache.invalidations() != 1 {
		t.Fatalf("create should invalidate the catalog cache")
	}

	v, err := svc.Get(ctx, c.ID)
	if err != nil || v.Available != 2 || v.Name != "Fall Sale" || v.Percentage != 80 {
		t.Fatalf("Get = %+v, %v", v, err)
	}

	// Without a key, an identical request is a new campaign.
	c2, _, err := svc.Create(ctx, CreateCampaignInput{Owner: "brandA", Name: "Fall Sale", Percentage: 80, Quota: 2})
	if err != nil || c2.ID == c.ID {
		t.Fatalf("expected a distinct campaign, got %+v, %v", c2, err)
	}
}

func TestCampaignService_Create_IdempotencyKey(t *testing.T) {
	db := newTestDB(t)
	svc := NewCampaignService(db, nil, time.Hour)
	ctx := context.Background()
	in := CreateCampaignInput{Owner: "brandA", Name: "Promo", Percentage: 10, Quota: 5, IdempotencyKey: "req-1"}

	first, replayed, err := svc.Create(ctx, in)
	if err != nil || replayed {
		t.Fatalf("first create: replayed=%v err=%v", replayed, err)
	}
	again, replayed, err := svc.Create(ctx, in)
	if err != nil || !replayed || again.ID != first.ID {
		t.Fatalf("replay: id=%d replayed=%v err=%v", again.ID, replayed, err)
	}

	// Same key from another brand is unrelated.
	in.Owner = "brandB"
	other, replayed, err := svc.Create(ctx, in)
	if err != nil || replayed || other.ID == first.ID {
		t.Fatalf("other owner: id=%d replayed=%v err=%v", other.ID, replayed, err)
	}

	n, _, _ := svc.CatalogFingerprint(ctx)
	if n != 2 {
		t.Fatalf("catalog size = %d; want 2", n)
	}
}

func TestCampaignService_Create_ExpiredIdempotencyKeyIsReusable(t *testing.T) {
	db := newTestDB(t)
	svc := NewCampaignService(db, nil, time.Hour)
	ctx := context.Background()
	in := CreateCampaignInput{Owner: "brandA", Name: "Promo", Percentage: 10, Quota: 5, IdempotencyKey: "k1"}

	first, _, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Expired but not yet purged.
	err = db.Model(&domain.IdempotencyKey{}).
		Where("owner = ? AND key = ?", "brandA", "k1").
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error
	if err != nil {
		t.Fatalf("expire key: %v", err)
	}

	second, replayed, err := svc.Create(ctx, in)
	if err != nil || replayed {
		t.Fatalf("reuse after ttl: replayed=%v err=%v", replayed, err)
	}
	if second.ID == first.ID {
		t.Fatalf("expired key must mint a new campaign, got id %d again", second.ID)
	}

	// The key now belongs to the second campaign.
	third, replayed, err := svc.Create(ctx, in)
	if err != nil || !replayed || third.ID != second.ID {
		t.Fatalf("replay after rebind: id=%d replayed=%v err=%v; want %d", third.ID, replayed, err, second.ID)
	}

	var rows int64
	if err := db.Model(&domain.IdempotencyKey{}).Count(&rows).Error; err != nil || rows != 1 {
		t.Fatalf("idempotency rows = %d, %v; want 1", rows, err)
	}
	if n, _, _ := svc.CatalogFingerprint(ctx); n != 2 {
		t.Fatalf("catalog size = %d; want 2", n)
	}
}

func TestCampaignService_Create_IdempotencyKey_Concurrent(t *testing.T) {
	db := newTestDB(t)
	svc := NewCampaignService(db, nil, time.Hour)
	in := CreateCampaignInput{Owner: "brandA", Name: "Race", Percentage: 10, Quota: 5, IdempotencyKey: "same"}

	const n = 8
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := svc.Create(context.Background(), in)
			if err != nil {
				t.Errorf("create %d: %v", i, err)
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("all requests must resolve to one campaign, got %v", ids)
		}
	}
	cnt, _, _ := svc.CatalogFingerprint(context.Background())
	if cnt != 1 {
		t.Fatalf("expected exactly one campaign, got %d", cnt)
	}
}

func TestCampaignService_ListAvailable(t *testing.T) {
	db := newTestDB(t)
	svc := NewCampaignService(db, nil, time.Hour)
	ctx := context.Background()

	a := mustCampaign(t, db, "brandA", "A", 10, 1)
	b := mustCampaign(t, db, "brandA", "B", 20, 2)
	c := mustCampaign(t, db, "brandB", "C", 30, 3)

	claims := NewClaimService(db, ClaimOptions{})
	if _, err := claims.Claim(ctx, a.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	items, total, err := svc.ListAvailable(ctx, 1, 20)
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("total=%d len=%d; want 2/2", total, len(items))
	}
	if items[0].ID != c.ID || items[1].ID != b.ID {
		t.Fatalf("expected newest first, got %+v", items)
	}
	if items[0].Owner != "brandB" || items[0].Available != 3 {
		t.Fatalf("unexpected view %+v", items[0])
	}

	p2, total, err := svc.ListAvailable(ctx, 2, 1)
	if err != nil || total != 2 || len(p2) != 1 || p2[0].ID != b.ID {
		t.Fatalf("page 2 = %+v total=%d err=%v", p2, total, err)
	}

	// Defaults for bad paging input.
	if items, _, err := svc.ListAvailable(ctx, 0, 0); err != nil || len(items) != 2 {
		t.Fatalf("defaults: %d, %v", len(items), err)
	}

	// Exhausted campaigns stay reachable by id.
	v, err := svc.Get(ctx, a.ID)
	if err != nil || v.Available != 0 {
		t.Fatalf("Get exhausted = %+v, %v", v, err)
	}
}

func TestCampaignService_ListAvailable_Empty(t *testing.T) {
	db := newTestDB(t)
	svc := NewCampaignService(db, nil, time.Hour)
	items, total, err := svc.ListAvailable(context.Background(), 1, 20)
	if err != nil || total != 0 || items == nil || len(items) != 0 {
		t.Fatalf("empty catalog = %v total=%d err=%v", items, total, err)
	}
}

func TestCampaignService_ListAvailable_Cache(t *testing.T) {
	db := newTestDB(t)
	cache := newFakeCache()
	svc := NewCampaignService(db, cache, time.Hour)
	ctx := context.Background()
	mustCampaign(t, db, "brandA", "A", 10, 1)

	if _, _, err := svc.ListAvailable(ctx, 1, 20); err != nil {
		t.Fatalf("miss: %v", err)
	}
	if _, ok := cache.pages[pageKey{0, 1, 20}]; !ok {
		t.Fatalf("expected page to be cached")
	}

	// A row written behind the cache's back is not seen until invalidation.
	mustCampaign(t, db, "brandA", "B", 10, 1)
	items, _, _ := svc.ListAvailable(ctx, 1, 20)
	if len(items) != 1 {
		t.Fatalf("expected cached snapshot, got %d items", len(items))
	}
	_ = cache.Invalidate(ctx)
	items, _, _ = svc.ListAvailable(ctx, 1, 20)
	if len(items) != 2 {
		t.Fatalf("expected fresh read after invalidation, got %d items", len(items))
	}

	// Cache failures fall through to the database.
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	items, _, err := svc.ListAvailable(ctx, 1, 20)
	if err != nil || len(items) != 2 {
		t.Fatalf("cache errors must not fail reads: %d, %v", len(items), err)
	}
}

func TestCampaignService_ListAvailable_InvalidationDuringRead(t *testing.T) {
	db := newTestDB(t)
	cache := newFakeCache()
	svc := NewCampaignService(db, cache, time.Hour)
	ctx := context.Background()
	mustCampaign(t, db, "brandA", "A", 10, 1)

	// A write lands and invalidates after the page was read from the
	// database but before it reaches the cache.
	cache.beforeSet = func() {
		cache.beforeSet = nil
		mustCampaign(t, db, "brandA", "B", 10, 1)
		_ = cache.Invalidate(ctx)
	}
	items, _, err := svc.ListAvailable(ctx, 1, 20)
	if err != nil || len(items) != 1 {
		t.Fatalf("first read = %d items, err=%v; want 1", len(items), err)
	}

	items, total, err := svc.ListAvailable(ctx, 1, 20)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("stale page served after invalidation: %d items total=%d", len(items), total)
	}
}

func TestCampaignService_Get_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewCampaignService(db, nil, time.Hour)
	if _, err := svc.Get(context.Background(), 42); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("want ErrCampaignNotFound, got %v", err)
	}
}

func TestCampaignService_ListCodes_OwnerOnly(t *testing.T) {
	db := newTestDB(t)
	svc := NewCampaignService(db, nil, time.Hour)
	ctx := context.Background()
	c := mustCampaign(t, db, "brandA", "A", 10, 3)

	claims := NewClaimService(db, ClaimOptions{})
	for _, u := range []string{"alice", "bob"} {
		if _, err := claims.Claim(ctx, c.ID, u); err != nil {
			t.Fatalf("claim %s: %v", u, err)
		}
	}

	codes, err := svc.ListCodes(ctx, "brandA", c.ID)
	if err != nil || len(codes) != 2 {
		t.Fatalf("ListCodes = %d, %v", len(codes), err)
	}
	if _, err := svc.ListCodes(ctx, "brandB", c.ID); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("foreign owner: want ErrCampaignNotFound, got %v", err)
	}
	if _, err := svc.ListCodes(ctx, "brandA", 999); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("missing: want ErrCampaignNotFound, got %v", err)
	}
}
