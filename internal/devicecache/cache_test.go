package devicecache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/devicecache"
	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/repository"
)

func newTestCache(t *testing.T) (*devicecache.Cache, *repository.MockDeviceRepository) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	repo := repository.NewMockDeviceRepository()
	return devicecache.New(client, repo, time.Minute, zap.NewNop()), repo
}

func TestCache_FallsBackToRepositoryOnMiss(t *testing.T) {
	cache, repo := newTestCache(t)
	ctx := context.Background()

	dev := &domain.DeviceRegistration{ID: "d1", UserID: "u1", Platform: domain.PlatformIOS, Token: "tok", Active: true}
	if err := repo.RegisterDevice(ctx, dev); err != nil {
		t.Fatalf("seed repo: %v", err)
	}

	devices, err := cache.ListUserDevices(ctx, "u1")
	if err != nil {
		t.Fatalf("ListUserDevices: %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "d1" {
		t.Fatalf("expected one device d1, got %+v", devices)
	}
}

func TestCache_RegisterInvalidatesCachedList(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	first := &domain.DeviceRegistration{ID: "d1", UserID: "u1", Platform: domain.PlatformIOS, Token: "tok1", Active: true}
	if err := cache.RegisterDevice(ctx, first); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := cache.ListUserDevices(ctx, "u1"); err != nil {
		t.Fatalf("list: %v", err)
	}

	second := &domain.DeviceRegistration{ID: "d2", UserID: "u1", Platform: domain.PlatformAndroid, Token: "tok2", Active: true}
	if err := cache.RegisterDevice(ctx, second); err != nil {
		t.Fatalf("register second: %v", err)
	}

	devices, err := cache.ListUserDevices(ctx, "u1")
	if err != nil {
		t.Fatalf("list after invalidation: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices after invalidation repopulates from repo, got %d", len(devices))
	}
}
