// Package conflict derives potential reviewing conflicts between track
// members and paper authors from shared affiliations.
//
// Nothing here is persisted; every query recomputes the conflict set from
// the current roster and paper list.
package conflict

import (
	"encoding/json"
	"strings"
)

// Author is one normalized paper author reference. An author parsed from a
// bare email carries no name or affiliation until resolved against a stored
// profile.
type Author struct {
	Name        string
	Email       string
	Affiliation string
}

const maxDecodeDepth = 3

// ParseAuthors normalizes a raw paper author blob into a flat author list.
//
// Papers historically stored authors in three shapes: a JSON array of email
// strings, a JSON array of author objects, or a JSON-encoded string wrapping
// either of those. All three are accepted here, at the storage boundary, so
// read sites never deal with the variants. Emails are lowercased and
// trimmed; entries without an email are dropped.
func ParseAuthors(raw string) []Author {
	return parseAuthors(raw, maxDecodeDepth)
}

func parseAuthors(raw string, depth int) []Author {
	raw = strings.TrimSpace(raw)
	if raw == "" || depth <= 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		// Not JSON at all: tolerate a plain delimiter-separated email list.
		return authorsFromEmailList(raw)
	}

	switch value := decoded.(type) {
	case string:
		// Double-encoded blob; unwrap one layer.
		return parseAuthors(value, depth-1)
	case []any:
		var authors []Author
		for _, element := range value {
			switch entry := element.(type) {
			case string:
				if email := normalizeEmail(entry); email != "" {
					authors = append(authors, Author{Email: email})
				}
			case map[string]any:
				author := Author{
					Name:        stringField(entry, "name"),
					Email:       normalizeEmail(stringField(entry, "email")),
					Affiliation: stringField(entry, "affiliation"),
				}
				if author.Email != "" {
					authors = append(authors, author)
				}
			}
		}
		return authors
	default:
		return nil
	}
}

func authorsFromEmailList(raw string) []Author {
	var authors []Author
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		if email := normalizeEmail(part); email != "" {
			authors = append(authors, Author{Email: email})
		}
	}
	return authors
}

// Distinct deduplicates authors by email, keeping the richest entry seen:
// an author object with an affiliation wins over a bare email reference.
func Distinct(authors []Author) []Author {
	seen := make(map[string]int, len(authors))
	var out []Author
	for _, author := range authors {
		index, ok := seen[author.Email]
		if !ok {
			seen[author.Email] = len(out)
			out = append(out, author)
			continue
		}
		if out[index].Affiliation == "" && author.Affiliation != "" {
			out[index] = author
		}
	}
	return out
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func stringField(entry map[string]any, key string) string {
	value, _ := entry[key].(string)
	return strings.TrimSpace(value)
}
