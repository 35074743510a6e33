package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expectID string
		expectOK bool
	}{
		{"with request ID", WithRequestID(context.Background(), "test-id-123"), "test-id-123", true},
		{"without request ID", context.Background(), "", false},
		{"with empty request ID", WithRequestID(context.Background(), ""), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := GetRequestID(tt.ctx)
			assert.Equal(t, tt.expectID, id)
			assert.Equal(t, tt.expectOK, ok)
		})
	}
}

func TestTraceStart(t *testing.T) {
	_, ok := GetTraceStart(context.Background())
	assert.False(t, ok)

	start := time.Now()
	got, ok := GetTraceStart(WithTraceStart(context.Background(), start))
	assert.True(t, ok)
	assert.Equal(t, start, got)
}

func TestGetUsername(t *testing.T) {
	_, ok := GetUsername(context.Background())
	assert.False(t, ok)

	username, ok := GetUsername(context.WithValue(context.Background(), ContextKeyUsername, "admin"))
	assert.True(t, ok)
	assert.Equal(t, "admin", username)
}

// Keys of another package with the same underlying string must not collide.
func TestContextKeyIsolation(t *testing.T) {
	type otherKey string
	ctx := context.WithValue(context.Background(), otherKey("request_id"), "foreign")
	_, ok := GetRequestID(ctx)
	assert.False(t, ok)
}
