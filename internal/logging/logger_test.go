package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestComponent_AddsField(t *testing.T) {
	orig := log.Logger
	t.Cleanup(func() { log.Logger = orig })

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	l := Component("review")
	l.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"cmp":"review"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestSetup_Verbose(t *testing.T) {
	orig := log.Logger
	origLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = orig
		zerolog.SetGlobalLevel(origLevel)
	})

	var buf bytes.Buffer
	Setup(&buf, true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	log.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")

	buf.Reset()
	Setup(&buf, false)
	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}
