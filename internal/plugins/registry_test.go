package plugins

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/catgenie/internal/config"
)

func TestCompiledSkipsUnconfigured(t *testing.T) {
	assert.Nil(t, Compiled(nil, Deps{}))
	assert.Empty(t, Compiled(&config.Config{}, Deps{Logger: zerolog.Nop()}))
}

func TestCompiledBuildsCatGenie(t *testing.T) {
	cfg := &config.Config{CatGenie: &config.CatGenieConfig{Name: "Box", RefreshToken: "abc"}}
	out := Compiled(cfg, Deps{Logger: zerolog.Nop()})
	require.Len(t, out, 1)
	assert.Equal(t, "catgenie", out[0].ID())
}
