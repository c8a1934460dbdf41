package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.TraceLevel, parseLevel("trace"))
	assert.Equal(t, logrus.DebugLevel, parseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, parseLevel(" WARN "))
	assert.Equal(t, logrus.ErrorLevel, parseLevel("error"))
	assert.Equal(t, logrus.FatalLevel, parseLevel("fatal"))
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, parseLevel(""))
	assert.Equal(t, logrus.InfoLevel, parseLevel("verbose"))
}

func TestFormatterSelection(t *testing.T) {
	assert.IsType(t, &logrus.JSONFormatter{}, newFormatter(""))
	assert.IsType(t, &logrus.JSONFormatter{}, newFormatter("json"))
	assert.IsType(t, &logrus.TextFormatter{}, newFormatter("text"))
	assert.IsType(t, &logrus.TextFormatter{}, newFormatter(" TEXT "))
}
