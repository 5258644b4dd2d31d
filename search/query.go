package search

import (
	"strconv"
	"strings"
)

// Query is a parsed search input. Free words go to Terms, flags narrow the result.
type Query struct {
	Raw    string
	Terms  string
	Sender string
	Lang   string
	Limit  int
}

// ParseQuery reads command-line style flags out of a raw input.
// Example: invoice due --sender alice --lang en --limit 5
// Unknown flags are dropped with their value.
func ParseQuery(input string, defaultLimit int) Query {
	query := Query{Raw: input, Limit: defaultLimit}

	parts := strings.Fields(input)
	var terms []string
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			value := parts[i+1]
			switch strings.TrimPrefix(part, "--") {
			case "sender":
				query.Sender = value
			case "lang":
				query.Lang = strings.ToLower(value)
			case "limit":
				if n, err := strconv.Atoi(value); err == nil && n > 0 {
					query.Limit = n
				}
			}
			i++
			continue
		}
		terms = append(terms, part)
	}
	query.Terms = strings.Join(terms, " ")
	return query
}

// Empty reports a query that would match everything.
func (q Query) Empty() bool {
	return q.Terms == "" && q.Sender == "" && q.Lang == ""
}
