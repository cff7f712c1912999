package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewWithWriter(buf)
	l.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}

func TestContextRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))
	l := FromContext(ctx)
	l.Info().Msg("from ctx")
	require.Contains(t, buf.String(), "from ctx")
}

func TestFromContextDefaultIsSilent(t *testing.T) {
	l := FromContext(context.Background())
	require.Equal(t, zerolog.Disabled, l.GetLevel())
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	l := WithFields(NewWithWriter(buf), map[string]any{"merchant": "SWIGGY"})
	l.Info().Msg("x")
	require.Contains(t, buf.String(), `"merchant":"SWIGGY"`)
}
