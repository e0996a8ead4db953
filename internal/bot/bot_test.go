package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashcards-bot/internal/service"
)

func TestParseStudyCallback(t *testing.T) {
	mode, deckID, err := parseStudyCallback("study:1:42")
	require.NoError(t, err)
	assert.Equal(t, service.ModeTimed, mode)
	assert.EqualValues(t, 42, deckID)

	for _, bad := range []string{"study:", "study:1", "study:x:42", "study:1:x", "study:1:2:3"} {
		_, _, err := parseStudyCallback(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("deck:del:7", cbDeckDelPrefix)
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)

	_, err = parseID("deck:del:abc", cbDeckDelPrefix)
	assert.Error(t, err)
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "short", shortName("short", 10))
	assert.Equal(t, "multi line", shortName("multi\nline", 20))
	assert.Equal(t, "truncated…", shortName("truncated name", 10))
	assert.Equal(t, "préfé…", shortName("préférences", 6), "runes, not bytes")
}

func TestInputAliases(t *testing.T) {
	assert.True(t, isDoneInput("done"))
	assert.True(t, isDoneInput("  Done  "))
	assert.True(t, isDoneInput(btnDone))
	assert.False(t, isDoneInput("done adding"))

	assert.True(t, isCancelDialogInput(btnCancelDialog))
	assert.True(t, isCancelDialogInput("cancel input"))
	assert.False(t, isCancelDialogInput("cancel"))
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Deck name cannot be blank", capitalize("deck name cannot be blank"))
	assert.Equal(t, "", capitalize(""))
}
