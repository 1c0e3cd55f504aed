package channel_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/notifyhub/notification-engine/internal/channel"
	"github.com/notifyhub/notification-engine/internal/config"
	"github.com/notifyhub/notification-engine/internal/domain"
)

type fakeDeviceLister struct {
	devices []*domain.DeviceRegistration
}

func (f *fakeDeviceLister) ListUserDevices(ctx context.Context, userID string) ([]*domain.DeviceRegistration, error) {
	return f.devices, nil
}

type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	f.invalidated = append(f.invalidated, deviceID)
	return nil
}

func testNotification() *domain.Notification {
	return &domain.Notification{
		ID:    "n1",
		Title: "New comment",
		Body:  "Someone replied",
		Type:  domain.TypeComment,
	}
}

func TestPushAdapter_SendToUser_FansOutToActiveDevices(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "m1", "status": "accepted"})
	}))
	defer srv.Close()

	devices := &fakeDeviceLister{devices: []*domain.DeviceRegistration{
		{ID: "d1", Platform: domain.PlatformIOS, Token: "t1", Active: true},
		{ID: "d2", Platform: domain.PlatformAndroid, Token: "t2", Active: true},
		{ID: "d3", Platform: domain.PlatformWeb, Token: "t3", Active: false},
	}}

	a := channel.NewPushAdapter(config.PushConfig{GatewayURL: srv.URL, Timeout: time.Second}, devices, &fakeInvalidator{})
	result, err := a.SendToUser(context.Background(), testNotification(), "u1")
	if err != nil {
		t.Fatalf("SendToUser: %v", err)
	}
	if result.Attempted != 2 || result.Delivered != 2 {
		t.Fatalf("expected 2 attempted/delivered (inactive device skipped), got %+v", result)
	}
	if requests != 2 {
		t.Fatalf("expected 2 gateway requests, got %d", requests)
	}
}

func TestPushAdapter_DeadTokenInvalidatesDevice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	devices := &fakeDeviceLister{devices: []*domain.DeviceRegistration{
		{ID: "d1", Platform: domain.PlatformIOS, Token: "expired", Active: true},
	}}
	inv := &fakeInvalidator{}

	a := channel.NewPushAdapter(config.PushConfig{GatewayURL: srv.URL, Timeout: time.Second}, devices, inv)
	_, err := a.SendToUser(context.Background(), testNotification(), "u1")
	if err == nil {
		t.Fatal("expected error when the only device's token is dead")
	}
	if len(inv.invalidated) != 1 || inv.invalidated[0] != "d1" {
		t.Fatalf("expected device d1 invalidated, got %+v", inv.invalidated)
	}
}

func TestPushAdapter_SkipsAndInvalidatesStaleToken(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "m1", "status": "accepted"})
	}))
	defer srv.Close()

	devices := &fakeDeviceLister{devices: []*domain.DeviceRegistration{
		{ID: "stale", Platform: domain.PlatformIOS, Token: "t1", Active: true, TokenUpdatedAt: time.Now().Add(-400 * 24 * time.Hour)},
		{ID: "fresh", Platform: domain.PlatformAndroid, Token: "t2", Active: true, TokenUpdatedAt: time.Now()},
	}}
	inv := &fakeInvalidator{}

	a := channel.NewPushAdapter(config.PushConfig{GatewayURL: srv.URL, Timeout: time.Second, TokenExpiry: 180 * 24 * time.Hour}, devices, inv)
	result, err := a.SendToUser(context.Background(), testNotification(), "u1")
	if err != nil {
		t.Fatalf("SendToUser: %v", err)
	}
	if result.Attempted != 1 || result.Delivered != 1 {
		t.Fatalf("expected only the fresh token attempted, got %+v", result)
	}
	if requests != 1 {
		t.Fatalf("expected 1 gateway request, got %d", requests)
	}
	if len(inv.invalidated) != 1 || inv.invalidated[0] != "stale" {
		t.Fatalf("expected stale device invalidated, got %+v", inv.invalidated)
	}
}

func TestPushAdapter_NoDevicesIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gateway should not be called with zero devices")
	}))
	defer srv.Close()

	a := channel.NewPushAdapter(config.PushConfig{GatewayURL: srv.URL, Timeout: time.Second}, &fakeDeviceLister{}, &fakeInvalidator{})
	result, err := a.SendToUser(context.Background(), testNotification(), "u1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Attempted != 0 {
		t.Fatalf("expected zero attempts, got %+v", result)
	}
}
