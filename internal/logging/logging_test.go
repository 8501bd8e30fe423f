package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}

	for input, want := range cases {
		assert.Equal(t, want, parseLevel(input), "input=%q", input)
	}
}

func TestNew_AppliesConfiguredLevel(t *testing.T) {
	l := New(Config{Level: "warn", Console: false})
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
}

func TestNamed_AddsComponentField(t *testing.T) {
	base := New(DefaultConfig())
	named := Named(base, "scheduler")
	assert.NotEqual(t, base, named)
}
