package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-discount-backend/internal/domain"
	"github.com/tbourn/go-discount-backend/internal/repo"
)

// newTestDB opens a migrated, file-backed SQLite database with the same
// single-connection pool the server uses.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustCampaign(t *testing.T, db *gorm.DB, owner, name string, percentage, quota int) *domain.Campaign {
	t.Helper()
	c, err := domain.NewCampaign(owner, name, percentage, quota)
	if err != nil {
		t.Fatalf("NewCampaign: %v", err)
	}
	if err := repo.CreateCampaign(context.Background(), db, c); err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	return c
}

func consumedOf(t *testing.T, db *gorm.DB, id int64) int {
	t.Helper()
	c, err := repo.GetCampaign(context.Background(), db, id)
	if err != nil {
		t.Fatalf("GetCampaign: %v", err)
	}
	return c.Consumed
}

func codesOf(t *testing.T, db *gorm.DB, id int64) int64 {
	t.Helper()
	n, err := repo.CountIssuedCodes(context.Background(), db, id)
	if err != nil {
		t.Fatalf("CountIssuedCodes: %v", err)
	}
	return n
}

// fakeCache is an in-memory CatalogCache that records calls.
type fakeCache struct {
	mu          sync.Mutex
	gen         int64
	pages       map[pageKey]cachedPage
	invalidated int
	getErr      error
	setErr      error
	invErr      error
	// beforeSet runs at the start of SetPage, outside the lock.
	beforeSet func()
}

type pageKey struct {
	gen        int64
	page, size int
}

type cachedPage struct {
	items []domain.CampaignView
	total int64
}

func newFakeCache() *fakeCache { return &fakeCache{pages: map[pageKey]cachedPage{}} }

func (f *fakeCache) Generation(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.gen, nil
}

func (f *fakeCache) GetPage(_ context.Context, gen int64, page, size int) ([]domain.CampaignView, int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, 0, false, f.getErr
	}
	p, ok := f.pages[pageKey{gen, page, size}]
	return p.items, p.total, ok, nil
}

func (f *fakeCache) SetPage(_ context.Context, gen int64, page, size int, items []domain.CampaignView, total int64) error {
	if f.beforeSet != nil {
		f.beforeSet()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.pages[pageKey{gen, page, size}] = cachedPage{items: items, total: total}
	return nil
}

func (f *fakeCache) Invalidate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	f.gen++
	return f.invErr
}

func (f *fakeCache) invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}
