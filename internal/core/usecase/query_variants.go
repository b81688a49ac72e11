package usecase

import "strings"

const defaultMaxQueryVariants = 2

// workspaceSynonyms maps team vocabulary to the first alternative tried in a rewrite.
var workspaceSynonyms = map[string]string{
	"error":          "issue",
	"issue":          "problem",
	"bug":            "issue",
	"problem":        "issue",
	"fix":            "resolve",
	"resolve":        "fix",
	"setup":          "configure",
	"configure":      "setup",
	"config":         "configuration",
	"configuration":  "config",
	"docs":           "documentation",
	"documentation":  "docs",
	"doc":            "document",
	"meeting":        "call",
	"call":           "meeting",
	"deploy":         "release",
	"release":        "deploy",
	"implement":      "build",
	"build":          "implement",
	"auth":           "authentication",
	"authentication": "auth",
	"db":             "database",
	"database":       "db",
	"repo":           "repository",
	"repository":     "repo",
	"prod":           "production",
	"production":     "prod",
	"pr":             "pull request",
	"onboarding":     "getting started",
}

// buildQueryVariants produces cheap lexical rewrites of query: one synonym swap and one
// "-ing" strip, each distinct from the original and from each other.
func buildQueryVariants(query string, maxVariants int) []string {
	if maxVariants <= 0 {
		return nil
	}
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(tokens) == 0 {
		return nil
	}
	original := strings.Join(tokens, " ")

	seen := map[string]struct{}{original: {}}
	out := make([]string, 0, maxVariants)
	add := func(candidate []string) {
		if len(out) >= maxVariants {
			return
		}
		v := strings.Join(candidate, " ")
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	for i, token := range tokens {
		bare, trailing := splitTrailingPunct(token)
		syn, ok := workspaceSynonyms[bare]
		if !ok {
			continue
		}
		swapped := append([]string(nil), tokens...)
		swapped[i] = syn + trailing
		add(swapped)
		break
	}

	stripped := append([]string(nil), tokens...)
	changed := false
	for i, token := range stripped {
		bare, trailing := splitTrailingPunct(token)
		if stem, ok := stripIng(bare); ok {
			stripped[i] = stem + trailing
			changed = true
		}
	}
	if changed {
		add(stripped)
	}
	return out
}

func stripIng(word string) (string, bool) {
	// Short words such as "ring" or "thing" are not participles.
	if len(word) <= 5 || !strings.HasSuffix(word, "ing") {
		return word, false
	}
	stem := word[:len(word)-3]
	// running -> run, debugging -> debug
	if n := len(stem); n >= 2 && stem[n-1] == stem[n-2] && !strings.ContainsRune("lsz", rune(stem[n-1])) {
		stem = stem[:n-1]
	}
	return stem, true
}

func splitTrailingPunct(token string) (string, string) {
	end := len(token)
	for end > 0 && strings.ContainsRune("?!.,;:", rune(token[end-1])) {
		end--
	}
	return token[:end], token[end:]
}
