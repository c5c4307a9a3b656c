package services

import (
	"context"
	"errors"
	"testing"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
)

func newTestPasswordService(t *testing.T, fake *fakeWebService) (PasswordService, repositories.Repository) {
	t.Helper()
	repo, _ := newTestStore(t)
	return NewPasswordService(repo, fake, nil, testLogger()), repo
}

func TestGetPreventAccessReason(t *testing.T) {
	svc, _ := newTestPasswordService(t, newFakeWebService())

	passwordReason := models.PreventAccessReason{Reason: models.PreventReasonPassword, Message: "password required"}
	closedReason := models.PreventAccessReason{Reason: models.PreventReasonClosed, Message: "lesson closed"}
	noRetakeReason := models.PreventAccessReason{Reason: models.PreventReasonNoRetake, Message: "no more retakes"}

	tests := []struct {
		name           string
		info           *models.AccessInfo
		ignorePassword bool
		isReview       bool
		want           string
	}{
		{
			name: "closed window wins over password",
			info: &models.AccessInfo{PreventAccessReasons: []models.PreventAccessReason{passwordReason, closedReason}},
			want: models.PreventReasonClosed,
		},
		{
			name:           "password skipped when already known",
			info:           &models.AccessInfo{PreventAccessReasons: []models.PreventAccessReason{passwordReason, noRetakeReason}},
			ignorePassword: true,
			want:           models.PreventReasonNoRetake,
		},
		{
			name:     "no-retake skipped in review mode",
			info:     &models.AccessInfo{PreventAccessReasons: []models.PreventAccessReason{noRetakeReason, passwordReason}},
			isReview: true,
			want:     models.PreventReasonPassword,
		},
		{
			name:     "everything filtered out",
			info:     &models.AccessInfo{PreventAccessReasons: []models.PreventAccessReason{noRetakeReason}},
			isReview: true,
			want:     "",
		},
		{
			name: "nil access info",
			info: nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.GetPreventAccessReason(tt.info, tt.ignorePassword, tt.isReview)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("expected no reason, got %q", got.Reason)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected reason %q, got nil", tt.want)
			}
			if got.Reason != tt.want {
				t.Errorf("reason = %q, want %q", got.Reason, tt.want)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted password is stored", func(t *testing.T) {
		fake := newFakeWebService()
		fake.validPassword = "opensesame"
		svc, _ := newTestPasswordService(t, fake)

		lesson, err := svc.ValidatePassword(ctx, "site1", 1, "opensesame")
		if err != nil {
			t.Fatalf("ValidatePassword: %v", err)
		}
		if lesson.Ongoing == nil {
			t.Error("expected ongoing marker on accepted lesson")
		}

		stored, err := svc.GetStoredPassword(ctx, "site1", 1)
		if err != nil {
			t.Fatalf("GetStoredPassword: %v", err)
		}
		if stored != "opensesame" {
			t.Errorf("stored password = %q, want %q", stored, "opensesame")
		}
	})

	t.Run("rejected password is dropped", func(t *testing.T) {
		fake := newFakeWebService()
		fake.validPassword = "opensesame"
		svc, _ := newTestPasswordService(t, fake)

		if err := svc.StorePassword(ctx, "site1", 1, "wrong"); err != nil {
			t.Fatalf("StorePassword: %v", err)
		}

		_, err := svc.ValidatePassword(ctx, "site1", 1, "wrong")
		if !errors.Is(err, ErrLoginFailed) {
			t.Fatalf("expected ErrLoginFailed, got %v", err)
		}

		if _, err := svc.GetStoredPassword(ctx, "site1", 1); !errors.Is(err, ErrPasswordRequired) {
			t.Errorf("expected stored password gone, got %v", err)
		}
	})
}

func TestResolvePassword(t *testing.T) {
	ctx := context.Background()
	passwordInfo := func() *models.AccessInfo {
		return &models.AccessInfo{
			LessonID: 1,
			PreventAccessReasons: []models.PreventAccessReason{
				{Reason: models.PreventReasonPassword, Message: "password required"},
			},
		}
	}

	t.Run("no barriers", func(t *testing.T) {
		svc, _ := newTestPasswordService(t, newFakeWebService())
		password, err := svc.ResolvePassword(ctx, "site1", &models.Lesson{ID: 1}, &models.AccessInfo{}, nil)
		if err != nil {
			t.Fatalf("ResolvePassword: %v", err)
		}
		if password != "" {
			t.Errorf("password = %q, want empty", password)
		}
	})

	t.Run("non-password barrier refuses access", func(t *testing.T) {
		svc, _ := newTestPasswordService(t, newFakeWebService())
		info := &models.AccessInfo{
			PreventAccessReasons: []models.PreventAccessReason{
				{Reason: models.PreventReasonClosed, Message: "lesson closed"},
			},
		}
		_, err := svc.ResolvePassword(ctx, "site1", &models.Lesson{ID: 1}, info, nil)
		var prevented *PreventedAccessError
		if !errors.As(err, &prevented) {
			t.Fatalf("expected PreventedAccessError, got %v", err)
		}
		if prevented.Reason != models.PreventReasonClosed {
			t.Errorf("reason = %q, want %q", prevented.Reason, models.PreventReasonClosed)
		}
	})

	t.Run("stored password is reused", func(t *testing.T) {
		fake := newFakeWebService()
		fake.validPassword = "opensesame"
		svc, _ := newTestPasswordService(t, fake)

		if err := svc.StorePassword(ctx, "site1", 1, "opensesame"); err != nil {
			t.Fatalf("StorePassword: %v", err)
		}

		password, err := svc.ResolvePassword(ctx, "site1", &models.Lesson{ID: 1}, passwordInfo(), nil)
		if err != nil {
			t.Fatalf("ResolvePassword: %v", err)
		}
		if password != "opensesame" {
			t.Errorf("password = %q, want %q", password, "opensesame")
		}
	})

	t.Run("stale stored password falls back to prompt", func(t *testing.T) {
		fake := newFakeWebService()
		fake.validPassword = "fresh"
		svc, _ := newTestPasswordService(t, fake)

		if err := svc.StorePassword(ctx, "site1", 1, "stale"); err != nil {
			t.Fatalf("StorePassword: %v", err)
		}

		asked := 0
		password, err := svc.ResolvePassword(ctx, "site1", &models.Lesson{ID: 1}, passwordInfo(), func(ctx context.Context) (string, error) {
			asked++
			return "fresh", nil
		})
		if err != nil {
			t.Fatalf("ResolvePassword: %v", err)
		}
		if password != "fresh" {
			t.Errorf("password = %q, want %q", password, "fresh")
		}
		if asked != 1 {
			t.Errorf("prompt called %d times, want 1", asked)
		}
	})

	t.Run("no stored password and no prompt", func(t *testing.T) {
		fake := newFakeWebService()
		fake.validPassword = "opensesame"
		svc, _ := newTestPasswordService(t, fake)

		_, err := svc.ResolvePassword(ctx, "site1", &models.Lesson{ID: 1}, passwordInfo(), nil)
		if !errors.Is(err, ErrPasswordRequired) {
			t.Fatalf("expected ErrPasswordRequired, got %v", err)
		}
	})
}

func TestGetStoredPasswordMissing(t *testing.T) {
	svc, _ := newTestPasswordService(t, newFakeWebService())
	if _, err := svc.GetStoredPassword(context.Background(), "site1", 99); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
}
