package moderation

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/mama165/sdk-go/logs"
)

// BenchmarkModerator_Censor measures a body against a large dictionary,
// the cost paid by every submission before it is persisted.
func BenchmarkModerator_Censor(b *testing.B) {
	words := make([]string, 0, 50_000)
	for i := 0; i < 50_000; i++ {
		words = append(words, fmt.Sprintf("word%dx", i))
	}
	mod, err := NewModerator(words, '*', logs.GetLoggerFromLevel(slog.LevelError))
	if err != nil {
		b.Fatal(err)
	}
	body := strings.Repeat("a perfectly normal chat message with word42x inside ", 20)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = mod.Censor(body)
	}
}
