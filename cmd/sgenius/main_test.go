package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/sgenius/internal/config"
)

func TestBuildGenerator(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{config.BackendREST, "rest"},
		{config.BackendGenAI, "genai"},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Model.Backend = tt.backend
			cfg.Model.APIKey = "" // no client is dialled without a key

			gen, closeGen, err := buildGenerator(context.Background(), &cfg)
			require.NoError(t, err)
			defer closeGen()
			assert.Equal(t, tt.want, gen.Name())
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf).Info("hidden")
	assert.Empty(t, buf.String())

	newLogger(config.LogConfig{Level: "debug", Format: "text"}, &buf).Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")

	buf.Reset()
	newLogger(config.LogConfig{Level: "bogus", Format: "json"}, &buf).Info("fallback")
	assert.Contains(t, buf.String(), `"msg":"fallback"`)
}
