package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in   string
		want Environment
	}{
		{"production", Production},
		{" PROD ", Production},
		{"staging", Staging},
		{"test", Testing},
		{"testing", Testing},
		{"", Development},
		{"laptop", Development},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseEnvironment(tt.in), tt.in)
	}
}

func TestEnvironmentDecode(t *testing.T) {
	var e Environment
	assert.NoError(t, e.Decode("Production"))
	assert.True(t, e.IsProduction())
	assert.Equal(t, "production", e.String())
}
