package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"RivalScanner/internal/config"
)

func TestSharedStoreWithLocalLease(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		redis   string
		want    bool
	}{
		{"rest without redis", config.BackendREST, "", true},
		{"default backend without redis", "", "", true},
		{"rest with redis", config.BackendREST, "localhost:6379", false},
		{"sqlite without redis", config.BackendSQLite, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg config.Config
			cfg.Storage.Backend = tt.backend
			cfg.Lease.RedisAddress = tt.redis
			assert.Equal(t, tt.want, sharedStoreWithLocalLease(cfg))
		})
	}
}
