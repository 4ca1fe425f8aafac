package position

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/hitoshi/essaybinder/internal/model"
)

// --- モック ---

type mockPositionRepo struct {
	getFn     func(ctx context.Context, userID string) (model.Positions, error)
	replaceFn func(ctx context.Context, userID string, positions model.Positions) error
}

func (m *mockPositionRepo) Get(ctx context.Context, userID string) (model.Positions, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockPositionRepo) Replace(ctx context.Context, userID string, positions model.Positions) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, userID, positions)
	}
	return nil
}

func TestService_Get_EmptyWhenMissing(t *testing.T) {
	svc := NewService(&mockPositionRepo{})

	got, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Get() = %v, want empty map", got)
	}
}

func TestService_Get_RepositoryError(t *testing.T) {
	svc := NewService(&mockPositionRepo{
		getFn: func(ctx context.Context, userID string) (model.Positions, error) {
			return nil, errors.New("unavailable")
		},
	})
	if _, err := svc.Get(context.Background(), "u1"); err == nil {
		t.Error("Get() error = nil, want error")
	}
}

func TestService_Save(t *testing.T) {
	var savedUser string
	var saved model.Positions
	svc := NewService(&mockPositionRepo{
		replaceFn: func(ctx context.Context, userID string, positions model.Positions) error {
			savedUser = userID
			saved = positions
			return nil
		},
	})

	in := model.Positions{
		"e1": {X: 10, Y: 20.5, ZIndex: 1},
		"e2": {X: -3, Y: 0, ZIndex: 2},
	}
	if err := svc.Save(context.Background(), "u1", in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if savedUser != "u1" {
		t.Errorf("userID = %s, want u1", savedUser)
	}
	if len(saved) != 2 || saved["e1"] != in["e1"] {
		t.Errorf("saved = %v, want %v", saved, in)
	}
}

func TestService_Save_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		positions model.Positions
	}{
		{"nil", nil},
		{"empty id", model.Positions{"": {X: 1}}},
		{"long id", model.Positions{strings.Repeat("a", 129): {X: 1}}},
		{"NaN", model.Positions{"e1": {X: math.NaN()}}},
		{"Inf", model.Positions{"e1": {Y: math.Inf(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := NewService(&mockPositionRepo{
				replaceFn: func(ctx context.Context, userID string, positions model.Positions) error {
					called = true
					return nil
				},
			})
			err := svc.Save(context.Background(), "u1", tt.positions)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Message != "Invalid positions data" {
				t.Errorf("Save() error = %v, want Invalid positions data", err)
			}
			if called {
				t.Error("Replace called for invalid positions")
			}
		})
	}
}

func TestService_Save_EmptyMapAllowed(t *testing.T) {
	svc := NewService(&mockPositionRepo{})
	if err := svc.Save(context.Background(), "u1", model.Positions{}); err != nil {
		t.Errorf("Save() error = %v, want nil", err)
	}
}
