package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

func TestSetup(t *testing.T) {
	t.Run("json output carries fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logrus.New()
		entry, err := Setup(logger, config.LogConfig{Level: "debug", Format: "json"}, &buf)
		require.NoError(t, err)
		assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

		entry.WithField("component", "deduction").Debug("Derived edge")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "kin", line["app"])
		assert.Equal(t, "deduction", line["component"])
		assert.Equal(t, "Derived edge", line["msg"])
	})

	t.Run("defaults", func(t *testing.T) {
		logger := logrus.New()
		_, err := Setup(logger, config.LogConfig{}, nil)
		require.NoError(t, err)
		assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
		assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Setup(logrus.New(), config.LogConfig{Level: "loud"}, nil)
		require.Error(t, err)
		_, err = Setup(logrus.New(), config.LogConfig{Format: "xml"}, nil)
		require.Error(t, err)
	})
}
