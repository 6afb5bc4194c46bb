package router

import "strings"

// trie is a prefix tree over normalized entity names, used to spot
// known entities inside a free-text query.
type trie struct {
	children map[rune]*trie
	terminal bool
}

func newTrie() *trie {
	return &trie{children: make(map[rune]*trie)}
}

func (t *trie) insert(phrase string) {
	node := t
	for _, r := range strings.ToLower(phrase) {
		child, ok := node.children[r]
		if !ok {
			child = newTrie()
			node.children[r] = child
		}
		node = child
	}
	node.terminal = true
}

// match returns the longest stored phrase found anywhere in text, on
// token boundaries only, so "zap" does not fire inside "zapier".
func (t *trie) match(text string) (string, bool) {
	runes := []rune(strings.ToLower(text))
	best := ""
	for start := 0; start < len(runes); start++ {
		if start > 0 && isWordRune(runes[start-1]) && isWordRune(runes[start]) {
			continue
		}
		node := t
		for end := start; end < len(runes); end++ {
			child, ok := node.children[runes[end]]
			if !ok {
				break
			}
			node = child
			if node.terminal {
				if end+1 == len(runes) || !isWordRune(runes[end+1]) {
					if cand := string(runes[start : end+1]); len(cand) > len(best) {
						best = cand
					}
				}
			}
		}
	}
	return best, best != ""
}

// matchAll returns every distinct stored phrase found in text, longest
// first at each position, in order of appearance.
func (t *trie) matchAll(text string) []string {
	runes := []rune(strings.ToLower(text))
	var found []string
	seen := make(map[string]bool)
	for start := 0; start < len(runes); start++ {
		if start > 0 && isWordRune(runes[start-1]) && isWordRune(runes[start]) {
			continue
		}
		node := t
		best := ""
		for end := start; end < len(runes); end++ {
			child, ok := node.children[runes[end]]
			if !ok {
				break
			}
			node = child
			if node.terminal && (end+1 == len(runes) || !isWordRune(runes[end+1])) {
				best = string(runes[start : end+1])
			}
		}
		if best != "" && !seen[best] {
			seen[best] = true
			found = append(found, best)
		}
	}
	return found
}

func isWordRune(r rune) bool {
	return r == '-' || r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
