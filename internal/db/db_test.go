package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	medialink "github.com/YannKr/medialink"
	"github.com/YannKr/medialink/internal/model"
	"github.com/YannKr/medialink/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := OpenFile(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := Migrate(context.Background(), database, medialink.MigrationFS); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(database)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := Migrate(context.Background(), s.DB, medialink.MigrationFS); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestAdminRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	exp := time.Date(2025, 3, 1, 12, 10, 0, 0, time.UTC)

	a := &model.Administrator{
		ID:           "adm-1",
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
		OTP:          &model.OTPState{Code: "123456", ExpiresAt: exp},
	}
	if err := s.CreateAdmin(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &model.Administrator{ID: "adm-2", Email: "alice@example.com", PasswordHash: "x"}
	if err := s.CreateAdmin(ctx, dup); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("duplicate email: got %v, want ErrDuplicateEmail", err)
	}

	got, err := s.GetAdminByEmail(ctx, "ALICE@example.com")
	if err != nil || got == nil {
		t.Fatalf("get by email: %v %v", got, err)
	}
	if got.OTP == nil || got.OTP.Code != "123456" || !got.OTP.ExpiresAt.Equal(exp) {
		t.Errorf("otp = %+v, want code 123456 expiring %v", got.OTP, exp)
	}
	if got.Verified {
		t.Error("new admin should not be verified")
	}

	got.Verified = true
	got.OTP = nil
	if err := s.UpdateAdmin(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := s.GetAdminByID(ctx, "adm-1")
	if !again.Verified || again.OTP != nil {
		t.Errorf("after update: verified=%v otp=%+v", again.Verified, again.OTP)
	}

	missing, err := s.GetAdminByID(ctx, "nope")
	if missing != nil || err != nil {
		t.Errorf("missing admin: got %v, %v", missing, err)
	}
}

func TestClearExpiredOTPs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	s.CreateAdmin(ctx, &model.Administrator{ID: "a", Email: "a@x.io", PasswordHash: "h",
		OTP: &model.OTPState{Code: "111111", ExpiresAt: now.Add(-time.Minute)}})
	s.CreateAdmin(ctx, &model.Administrator{ID: "b", Email: "b@x.io", PasswordHash: "h",
		OTP:      &model.OTPState{Code: "222222", ExpiresAt: now.Add(time.Minute)},
		ResetOTP: &model.OTPState{Code: "333333", ExpiresAt: now.Add(-time.Second)}})

	n, err := s.ClearExpiredOTPs(ctx, now)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 2 {
		t.Errorf("cleared %d, want 2", n)
	}
	a, _ := s.GetAdminByID(ctx, "a")
	b, _ := s.GetAdminByID(ctx, "b")
	if a.OTP != nil {
		t.Error("expired OTP for a should be cleared")
	}
	if b.OTP == nil || b.ResetOTP != nil {
		t.Errorf("b: otp=%+v reset=%+v", b.OTP, b.ResetOTP)
	}
}

func TestMediaAndViews(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	s.CreateAdmin(ctx, &model.Administrator{ID: "owner", Email: "o@x.io", PasswordHash: "h"})
	for i, id := range []string{"m1", "m2", "m3"} {
		err := s.CreateMedia(ctx, &model.MediaAsset{
			ID: id, Title: "T" + id, Type: model.MediaVideo, FileURL: "https://cdn/" + id,
			OwnerID: "owner", CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("create media %s: %v", id, err)
		}
	}

	page, err := s.ListMediaByOwner(ctx, "owner", 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != "m3" || page[1].ID != "m2" {
		t.Errorf("first page = %v, want m3, m2", ids(page))
	}
	all, _ := s.ListMediaByOwner(ctx, "owner", 1, 0)
	if len(all) != 2 || all[1].ID != "m1" {
		t.Errorf("unbounded list from offset 1 = %v", ids(all))
	}
	if n, _ := s.CountMediaByOwner(ctx, "owner"); n != 3 {
		t.Errorf("count = %d, want 3", n)
	}

	for i := 0; i < 3; i++ {
		err := s.RecordView(ctx, &model.ViewLogEntry{
			ID: string(rune('a' + i)), MediaID: "m1", ViewerIP: "10.0.0.1",
			TokenUsed: model.DirectToken, Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("record view: %v", err)
		}
	}
	if err := s.RecordView(ctx, &model.ViewLogEntry{ID: "z", MediaID: "missing", ViewerIP: "1.1.1.1"}); err == nil {
		t.Error("recording a view for a missing asset should fail")
	}

	m, _ := s.GetMedia(ctx, "m1")
	if m.ViewCount != 3 {
		t.Errorf("view_count = %d, want 3", m.ViewCount)
	}
	if n, _ := s.CountViews(ctx, "m1"); n != 3 {
		t.Errorf("ledger count = %d, want 3", n)
	}

	recent, _ := s.ListViews(ctx, store.ViewQuery{MediaID: "m1", Since: base.Add(24 * time.Hour), Descending: true})
	if len(recent) != 2 || recent[0].ID != "c" || recent[1].ID != "b" {
		t.Errorf("windowed views = %+v", recent)
	}
	if !recent[0].Timestamp.Equal(base.Add(48 * time.Hour)) {
		t.Errorf("timestamp = %v", recent[0].Timestamp)
	}

	if err := s.SetViewCount(ctx, "m1", 7); err != nil {
		t.Fatalf("set view count: %v", err)
	}
	m, _ = s.GetMedia(ctx, "m1")
	if m.ViewCount != 7 {
		t.Errorf("view_count after set = %d", m.ViewCount)
	}
}

func ids(ms []model.MediaAsset) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
