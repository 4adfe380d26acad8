package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("chatty"))
}

func TestNewWithHandlerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithName("assetd"), WithHandler(slog.NewTextHandler(&buf, nil)))
	l.Info("hello")
	assert.Contains(t, buf.String(), "component=assetd")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestDiscard(t *testing.T) {
	Discard().Error("dropped")
}
