package db

import (
	"context"
	"testing"
)

func TestValidSchema(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"sst", true},
		{"sst_prod", true},
		{"a1", true},
		{"sst_2", true},
		{"Upper", false},
		{"1abc", false},
		{"a-b", false},
		{"a.b", false},
		{"a b", false},
		{"", false},
		{"drop;table", false},
	}

	for _, tt := range tests {
		if got := ValidSchema(tt.input); got != tt.valid {
			t.Errorf("ValidSchema(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestEnsureSchema_InvalidName(t *testing.T) {
	for _, name := range []string{"with-dash", "with.dot", "sp ace", "x;drop"} {
		if _, err := EnsureSchema(context.Background(), nil, name, nil); err == nil {
			t.Errorf("expected error for invalid schema %q", name)
		}
	}
}

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestPoolStats_Unhealthy(t *testing.T) {
	stats := &PoolStats{MaxConns: 20, AcquireDuration: "0s"}
	if stats.Healthy {
		t.Error("expected zero-value stats to be unhealthy")
	}
}

func TestNewPool_InvalidSchema(t *testing.T) {
	if _, err := NewPool(context.Background(), "postgres://localhost/sst", "bad-name", 4, 1); err == nil {
		t.Error("expected error for invalid schema")
	}
}
