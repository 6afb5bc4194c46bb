package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Config configures text splitting behavior.
type Config struct {
	// ChunkSize is the maximum window size in characters.
	// Default: 300
	ChunkSize int `yaml:"chunk_size,omitempty"`

	// Overlap is the number of characters shared between adjacent windows.
	// Default: 40
	Overlap int `yaml:"overlap,omitempty"`

	// Separators are tried in priority order; the splitter descends to the
	// next separator only when a part cannot fit within ChunkSize.
	// The empty separator means character-level split.
	// Default: ["\n\n", "\n", " ", ""]
	Separators []string `yaml:"separators,omitempty"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:  300,
		Overlap:    40,
		Separators: []string{"\n\n", "\n", " ", ""},
	}
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 300
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if len(c.Separators) == 0 {
		c.Separators = []string{"\n\n", "\n", " ", ""}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("overlap must be non-negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.ChunkSize {
		return fmt.Errorf("overlap (%d) must be less than chunk size (%d)", c.Overlap, c.ChunkSize)
	}
	return nil
}

// Splitter splits UTF-8 text into overlapping windows using a hierarchy of
// separators. Paragraph breaks are preferred over line breaks, line breaks
// over spaces, and only text that fits no coarser boundary is split at the
// character level.
//
// Output is deterministic: the same (text, config) always yields the same
// byte-identical sequence.
type Splitter struct {
	config Config
}

// New creates a splitter from configuration.
func New(cfg Config) (*Splitter, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunker config: %w", err)
	}
	return &Splitter{config: cfg}, nil
}

// Config returns the splitter configuration.
func (s *Splitter) Config() Config {
	return s.config
}

// Split splits text into windows of at most ChunkSize characters.
// Empty input yields nil.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	return s.split(text, s.config.Separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= s.config.ChunkSize {
		return []string{text}
	}

	sep, rest := pickSeparator(text, separators)
	if sep == "" {
		return s.hardSplit(text)
	}

	var out []string
	var fitting []string
	for _, part := range strings.Split(text, sep) {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) <= s.config.ChunkSize {
			fitting = append(fitting, part)
			continue
		}
		// Oversized part: flush what we have, then descend a separator level.
		if len(fitting) > 0 {
			out = append(out, s.merge(fitting, sep)...)
			fitting = nil
		}
		out = append(out, s.split(part, rest)...)
	}
	if len(fitting) > 0 {
		out = append(out, s.merge(fitting, sep)...)
	}

	if len(out) == 0 {
		// Text consisted solely of separators.
		return s.hardSplit(text)
	}
	return out
}

// pickSeparator returns the first separator present in text and the
// separators below it in the hierarchy.
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// merge packs parts that individually fit ChunkSize into maximal windows,
// carrying up to Overlap characters of trailing parts into the next window.
func (s *Splitter) merge(parts []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)

	var out []string
	var window []string
	total := 0 // character length of strings.Join(window, sep)

	for _, part := range parts {
		partLen := utf8.RuneCountInString(part)

		joinLen := 0
		if len(window) > 0 {
			joinLen = sepLen
		}

		if total+joinLen+partLen > s.config.ChunkSize && len(window) > 0 {
			out = append(out, strings.Join(window, sep))

			// Shrink the window to the overlap budget, and far enough that
			// the incoming part fits.
			for len(window) > 0 && (total > s.config.Overlap ||
				total+sepLen+partLen > s.config.ChunkSize) {
				total -= utf8.RuneCountInString(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}

		if len(window) > 0 {
			total += sepLen
		}
		window = append(window, part)
		total += partLen
	}

	if len(window) > 0 {
		out = append(out, strings.Join(window, sep))
	}
	return out
}

// hardSplit cuts text into fixed-stride character windows.
func (s *Splitter) hardSplit(text string) []string {
	runes := []rune(text)
	step := s.config.ChunkSize - s.config.Overlap
	if step < 1 {
		step = 1
	}

	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + s.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
