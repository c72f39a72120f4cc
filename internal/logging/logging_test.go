package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("triggersync", "debug", &buf)
	require.NoError(t, err)

	l.Info(context.Background(), "group armed", "group", "g1", "instruments", 3)

	out := buf.String()
	assert.Contains(t, out, "triggersync INFO group armed group=g1 instruments=3")
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("triggersync", "info", &buf)
	require.NoError(t, err)

	l.Debug(context.Background(), "state changed")
	assert.Empty(t, buf.String())

	l.Error(context.Background(), "download failed", "error", errors.New("short read"))
	assert.Contains(t, buf.String(), `ERRO download failed error="short read"`)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("triggersync", "chatty", &bytes.Buffer{})

	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "msg", render("msg", nil))
	assert.Equal(t, "msg a=1 b=MISSING", render("msg", []interface{}{"a", 1, "b"}))
}
