package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogrusAdapter(t *testing.T) {
	t.Parallel()

	underlying, hook := logrustest.NewNullLogger()
	underlying.SetLevel(logrus.InfoLevel)
	log := NewLogrus(underlying)

	log.Info("leaf split", "page", 7, "sibling", 8)
	log.Warn("page not freed", "page", 9)
	log.Error("flush failed", "error", "disk gone")

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "leaf split", entries[0].Message)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, 7, entries[0].Data["page"])
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, logrus.ErrorLevel, entries[2].Level)
}

func TestZapAdapter(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	log := NewZap(zap.New(core))

	log.Info("root grew", "root", 3)
	log.Error("flush failed", "page", 4)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "root grew", entries[0].Message)
	assert.Equal(t, int64(3), entries[0].ContextMap()["root"])
	assert.Equal(t, "flush failed", entries[1].Message)
}
