package scorer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.roastlive/pkg/moderation"
)

type Category string

const (
	CategoryToxicity   Category = "toxicity"
	CategoryHarassment Category = "harassment"
	CategoryHateSpeech Category = "hate_speech"
	CategorySexual     Category = "sexual"
	CategoryThreats    Category = "threats"
	CategorySpam       Category = "spam"
)

// Term is one word or phrase of the word list and the score it adds to its
// category.
type Term struct {
	Phrase   string
	Category Category
	Score    float64
}

// DefaultTerms is used when no word list file is configured.
var DefaultTerms = []Term{
	{"idiot", CategoryToxicity, 0.35},
	{"stupid", CategoryToxicity, 0.3},
	{"loser", CategoryHarassment, 0.4},
	{"nobody likes you", CategoryHarassment, 0.6},
	{"kill yourself", CategoryThreats, 0.95},
	{"i will find you", CategoryThreats, 0.8},
	{"free followers", CategorySpam, 0.6},
	{"buy followers", CategorySpam, 0.6},
}

// repeatLimit is how often one word may repeat before it counts as spam.
const repeatLimit = 5

// Scorer rates text against a word list. The list can be reloaded from its
// file while the server runs.
type Scorer struct {
	mu      sync.RWMutex
	terms   []Term
	path    string
	watcher *fsnotify.Watcher
}

func New(terms []Term) *Scorer {
	return &Scorer{terms: terms}
}

// Load reads the word list at path.
func Load(path string) (*Scorer, error) {
	terms, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return &Scorer{terms: terms, path: path}, nil
}

func readFile(path string) ([]Term, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening word list: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads one "phrase,category,score" term per line. Blank lines and
// lines starting with # are skipped.
func Parse(r io.Reader) ([]Term, error) {
	var terms []Term
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Split(text, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("word list line %d: expected phrase,category,score", line)
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil || score < 0 || score > 1 {
			return nil, fmt.Errorf("word list line %d: score must be between 0 and 1", line)
		}
		category := Category(strings.TrimSpace(fields[1]))
		if !category.valid() {
			return nil, fmt.Errorf("word list line %d: unknown category %q", line, category)
		}
		terms = append(terms, Term{
			Phrase:   normalize(fields[0]),
			Category: category,
			Score:    score,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading word list: %w", err)
	}
	return terms, nil
}

func (c Category) valid() bool {
	switch c {
	case CategoryToxicity, CategoryHarassment, CategoryHateSpeech, CategorySexual, CategoryThreats, CategorySpam:
		return true
	}
	return false
}

// normalize lower cases text and collapses everything that is not a letter
// or digit into single spaces.
func normalize(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}

// Watch reloads the word list whenever its file is written. It is a no-op
// for a scorer built from a fixed list.
func (s *Scorer) Watch() error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					s.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("word list watcher: %+v", err)
			}
		}
	}()

	// editors replace files, so watch the directory
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching word list: %w", err)
	}
	return nil
}

func (s *Scorer) reload() {
	terms, err := readFile(s.path)
	if err != nil {
		log.Errorf("reloading word list: %+v", err)
		return
	}
	s.mu.Lock()
	s.terms = terms
	s.mu.Unlock()
	log.Infof("reloaded %d terms from %s", len(terms), s.path)
}

func (s *Scorer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.terms)
}

func (s *Scorer) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// Score rates text. The overall score is the highest category score.
func (s *Scorer) Score(text string) moderation.Result {
	normalized := normalize(text)
	if normalized == "" {
		return moderation.Allowed
	}
	padded := " " + normalized + " "

	scores := map[Category]float64{}
	s.mu.RLock()
	for _, term := range s.terms {
		if term.Phrase != "" && strings.Contains(padded, " "+term.Phrase+" ") && term.Score > scores[term.Category] {
			scores[term.Category] = term.Score
		}
	}
	s.mu.RUnlock()

	if repeated(normalized) && scores[CategorySpam] < 0.5 {
		scores[CategorySpam] = 0.5
	}

	result := moderation.Result{
		Categories: moderation.Categories{
			Toxicity:   scores[CategoryToxicity],
			Harassment: scores[CategoryHarassment],
			HateSpeech: scores[CategoryHateSpeech],
			Sexual:     scores[CategorySexual],
			Threats:    scores[CategoryThreats],
			Spam:       scores[CategorySpam],
		},
	}
	for _, score := range scores {
		if score > result.Score {
			result.Score = score
		}
	}
	result.Action = moderation.ActionForScore(result.Score)
	result.Flagged = result.Action != moderation.ActionAllow
	return result
}

func repeated(normalized string) bool {
	counts := map[string]int{}
	for _, word := range strings.Fields(normalized) {
		counts[word]++
		if counts[word] > repeatLimit {
			return true
		}
	}
	return false
}
