package companion_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdhelper/internal/abi"
	"cmdhelper/internal/companion"
	"cmdhelper/internal/hosterr"
	"cmdhelper/internal/simhost"
)

func TestOpenMissingLibrary(t *testing.T) {
	h := simhost.New()
	_, err := companion.Open(h.RT, h.RT, h.Mem)
	assert.ErrorIs(t, err, hosterr.ErrLibraryNotLoaded)
	assert.True(t, hosterr.Recoverable(err))
}

func TestOpenMissingExport(t *testing.T) {
	h := simhost.New().WithCompanion(simhost.CompanionSpec{Missing: []string{companion.SymThreadName}})
	_, err := companion.Open(h.RT, h.RT, h.Mem)
	require.ErrorIs(t, err, hosterr.ErrSymbolNotFound)

	var le *hosterr.LibraryError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, companion.Library, le.Library)
	assert.Equal(t, companion.SymThreadName, le.Symbol)
	assert.True(t, hosterr.Recoverable(err))
}

func TestChatCommands(t *testing.T) {
	h := simhost.New().WithCompanion(simhost.CompanionSpec{
		Plugins: []simhost.Plugin{{Name: "a plugin with a long name", Commands: []string{"tools", "a-command-name-longer-than-sso"}}},
		Scripts: []simhost.Script{{Thread: "autolog", Commands: []string{"al"}}},
		Orphans: []string{"ghost"},
	})
	c, err := companion.Open(h.RT, h.RT, h.Mem)
	require.NoError(t, err)

	arr, err := c.ChatCommands()
	require.NoError(t, err)
	assert.Equal(t, 4, arr.Len())
	assert.Equal(t, 1, h.ChatCommandCalls())

	got := map[string]string{}
	for info, err := range arr.Values(h.Mem) {
		require.NoError(t, err)
		got[info.Name] = c.OwnerName(info.Owner)
	}
	assert.Equal(t, map[string]string{
		"tools":                          "a plugin with a long name",
		"a-command-name-longer-than-sso": "a plugin with a long name",
		"al":                             "autolog.cs",
		"ghost":                          abi.Unknown,
	}, got)
}

func TestThreadNameIsTrimmed(t *testing.T) {
	h := simhost.New().WithCompanion(simhost.CompanionSpec{
		Scripts: []simhost.Script{{Thread: "hud  ", Commands: []string{"h"}}},
	})
	c, err := companion.Open(h.RT, h.RT, h.Mem)
	require.NoError(t, err)

	arr, err := c.ChatCommands()
	require.NoError(t, err)
	for info, err := range arr.Values(h.Mem) {
		require.NoError(t, err)
		assert.Equal(t, "hud.cs", c.OwnerName(info.Owner))
	}
}

func TestThreadNameUnreadable(t *testing.T) {
	h := simhost.New().WithCompanion(simhost.CompanionSpec{})
	c, err := companion.Open(h.RT, h.RT, h.Mem)
	require.NoError(t, err)

	// an unmapped thread makes both the export and the struct read fail
	assert.Equal(t, abi.Unknown+companion.ScriptSuffix, c.OwnerName(abi.ScriptOwner{Thread: 0x0BAD0000}))
	assert.Equal(t, abi.Unknown, c.OwnerName(abi.NoOwner{}))
}
