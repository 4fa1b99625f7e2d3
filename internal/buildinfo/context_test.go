package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextGetters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
		systemID  string
	}{
		{"nil context", nil, UnknownValue, UnknownValue, UnknownValue},
		{"empty fields", &Context{}, UnknownValue, UnknownValue, UnknownValue},
		{"populated", NewContext("1.0.0", "2026-01-01", "ABCD-0123-4567"), "1.0.0", "2026-01-01", "ABCD-0123-4567"},
		{"pre-release tag", NewContext("v2.0.0-rc1", "", ""), "v2.0.0-rc1", UnknownValue, UnknownValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.buildDate, tt.ctx.GetBuildDate())
			assert.Equal(t, tt.systemID, tt.ctx.GetSystemID())
		})
	}
}
