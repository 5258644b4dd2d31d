package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// The dictionary avoids short words colliding inside others ("he" in "The")
func TestModerator_Censor(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := NewModerator([]string{"badger", "snake", "mushroom"}, replacementChar, log)
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{"Single word keeps surrounding spaces", "The badger is here", "The ****** is here", []string{"badger"}},
		{"Every occurrence is masked", "badger badger", "****** ******", []string{"badger", "badger"}},
		{"Leet speak with dots between letters", "Look at B.4.d.g.€r !", "Look at ********** !", []string{"badger"}},
		{"Uppercase and dashes", "S-N-A-K-E and a B.A.D.G.E.R", "********* and a ***********", []string{"snake", "badger"}},
		{"Accents around a match are untouched", "Un été avec un badger", "Un été avec un ******", []string{"badger"}},
		{"Trailing punctuation stays", "I love mushroom!", "I love ********!", []string{"mushroom"}},
		{"Clean sentence", "See you in the lobby", "See you in the lobby", nil},
		{"Empty body", "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			content, words := mod.Censor(tt.input)
			req.Equal(tt.expected, content)
			req.Equal(tt.words, words)
		})
	}
}

func TestModerator_Noise_Only_Dictionary_Entries(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given entries that normalize to nothing next to a real word
	mod, err := NewModerator([]string{"...", ",,,", "", "badger"}, replacementChar, log)
	req.NoError(err)

	content, words := mod.Censor("The badger is safe")
	req.Equal("The ****** is safe", content)
	req.Equal([]string{"badger"}, words)

	// Then punctuation itself is never censored
	content, words = mod.Censor("Hello ...")
	req.Equal("Hello ...", content)
	req.Nil(words)
}

func TestModerator_Without_Any_Word(t *testing.T) {
	req := require.New(t)
	mod, err := NewModerator([]string{"???", " "}, replacementChar, logs.GetLoggerFromLevel(slog.LevelError))
	req.NoError(err)

	content, words := mod.Censor("anything goes")

	req.Equal("anything goes", content)
	req.Nil(words)
}

func TestModerator_Moderate_Tags_Language(t *testing.T) {
	req := require.New(t)
	mod, err := NewModerator([]string{"merde"}, '#', logs.GetLoggerFromLevel(slog.LevelError))
	req.NoError(err)

	result := mod.Moderate("Bonjour à tous, je voulais vous dire que cette réunion était vraiment une merde complète aujourd'hui")

	req.Equal("fr", result.Lang)
	req.Equal([]string{"merde"}, result.Words)
	req.Contains(result.Body, "#####")
	req.NotContains(result.Body, "merde")
}

func TestDetectLanguage_Short_Text_Is_Unreliable(t *testing.T) {
	require.Empty(t, DetectLanguage("ok"))
}
