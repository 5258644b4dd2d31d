package runtime

import (
	"quorum/errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestCensoredLoader_LoadAll(t *testing.T) {
	req := require.New(t)
	files := fstest.MapFS{
		"censored/en.txt":       {Data: []byte("# english\nbadger\r\nSnake\n\n")},
		"censored/fr.txt":       {Data: []byte("blaireau\nbadger\n")},
		"censored/README.md":    {Data: []byte("not a dictionary")},
		"censored/nested/x.txt": {Data: []byte("ignored")},
	}

	data, err := NewCensoredLoader(files).LoadAll("censored")

	req.NoError(err)
	req.Equal([]string{"en", "fr"}, data.Languages)
	req.Equal([]string{"badger", "blaireau", "snake"}, data.Words)
}

func TestCensoredLoader_Empty_Dictionaries(t *testing.T) {
	req := require.New(t)
	files := fstest.MapFS{
		"censored/en.txt": {Data: []byte("# nothing yet\n\n")},
	}

	_, err := NewCensoredLoader(files).LoadAll("censored")

	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestCensoredLoader_Embedded_Folder(t *testing.T) {
	req := require.New(t)

	data, err := NewCensoredLoader(censoredFolder).LoadAll("censored")

	req.NoError(err)
	req.Contains(data.Languages, "en")
	req.Contains(data.Languages, "fr")
	req.NotEmpty(data.Words)
}
