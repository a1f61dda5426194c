package cdpgen

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// used when /usr/share/dict/words is missing (windows, containers)
var fallbackWords = []string{
	"api", "user", "data", "request", "response", "header", "body",
	"status", "error", "server", "client", "service", "endpoint", "query",
	"auth", "token", "key", "value", "name", "content", "message", "result",
	"session", "profile", "account", "order", "invoice", "cart", "search",
	"image", "asset", "bundle", "config", "metrics", "events", "feed",
}

type Dictionary struct {
	words []string
}

// LoadDictionary reads a newline separated word list, keeping short
// alphabetic words only.
func LoadDictionary(path string) (*Dictionary, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Dictionary{words: fallbackWords}, nil
		}
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if len(word) >= 3 && len(word) <= 12 && isAlpha(word) {
			words = append(words, strings.ToLower(word))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dictionary: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("no valid words found in dictionary")
	}

	return &Dictionary{words: words}, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func (d *Dictionary) RandomWord(rng *rand.Rand) string {
	if len(d.words) == 0 {
		return "word"
	}
	return d.words[rng.Intn(len(d.words))]
}

func (d *Dictionary) Size() int {
	return len(d.words)
}
