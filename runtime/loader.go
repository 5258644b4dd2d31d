// Package runtime holds the in-memory machinery of the chat: the connection
// registry, the room router, the per-group sequencer and the process wiring.
package runtime

import (
	"bufio"
	"bytes"
	"io/fs"
	"path"
	"quorum/errors"
	"sort"
	"strings"
)

// CensoredData is the merged dictionary of every language file.
type CensoredData struct {
	Words     []string
	Languages []string
}

// CensoredLoader reads one dictionary per language ("fr.txt" -> "fr") from a filesystem,
// usually the embedded censored folder.
type CensoredLoader struct {
	fs fs.FS
}

func NewCensoredLoader(f fs.FS) *CensoredLoader {
	return &CensoredLoader{fs: f}
}

// LoadAll merges the .txt files of dir. Blank lines and lines starting with '#' are skipped,
// duplicates across languages are kept once.
func (l *CensoredLoader) LoadAll(dir string) (*CensoredData, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	var languages []string
	unique := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(l.fs, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		// bufio handles \r\n files, strings.Split would keep the \r
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			unique[strings.ToLower(line)] = struct{}{}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(unique) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(unique))
	for w := range unique {
		words = append(words, w)
	}
	sort.Strings(words)
	sort.Strings(languages)
	return &CensoredData{Words: words, Languages: languages}, nil
}
