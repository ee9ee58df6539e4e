package auth

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestResolveIdentity(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name     string
		claims   *Claims
		wantRole Role
		wantErr  bool
	}{
		{"doctor role claim", &Claims{ActorID: id.String(), Role: "doctor"}, RoleDoctor, false},
		{"patient in roles list", &Claims{ActorID: id.String(), Roles: []string{"auditor", "patient"}}, RolePatient, false},
		{"spring style role", &Claims{ActorID: id.String(), Roles: []string{"ROLE_DOCTOR"}}, RoleDoctor, false},
		{"role claim wins over list", &Claims{ActorID: id.String(), Role: "patient", Roles: []string{"doctor"}}, RolePatient, false},
		{"nil claims", nil, "", true},
		{"missing id", &Claims{Role: "doctor"}, "", true},
		{"non uuid id", &Claims{ActorID: "42", Role: "doctor"}, "", true},
		{"nil uuid", &Claims{ActorID: uuid.Nil.String(), Role: "doctor"}, "", true},
		{"unknown role", &Claims{ActorID: id.String(), Role: "admin"}, "", true},
		{"no role", &Claims{ActorID: id.String()}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveIdentity(tt.claims)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedIdentity) {
					t.Fatalf("expected ErrMalformedIdentity, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ActorID != id {
				t.Errorf("ActorID = %s, want %s", got.ActorID, id)
			}
			if got.Role != tt.wantRole {
				t.Errorf("Role = %q, want %q", got.Role, tt.wantRole)
			}
		})
	}
}

func TestResolveIdentity_Deterministic(t *testing.T) {
	c := &Claims{ActorID: uuid.New().String(), Role: "doctor"}
	a, _ := ResolveIdentity(c)
	b, _ := ResolveIdentity(c)
	if a != b {
		t.Errorf("expected identical results, got %+v and %+v", a, b)
	}
}
