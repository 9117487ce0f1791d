package stress

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownCategory is returned when a requested category is not in the
// corpus.
var ErrUnknownCategory = errors.New("stress: unknown category")

// Question is one scripted input.
type Question struct {
	Category string `json:"category" yaml:"category"`
	Text     string `json:"text" yaml:"text"`
}

// corpusFile is the YAML layout accepted by [LoadCorpus].
type corpusFile struct {
	Categories []struct {
		Name      string   `yaml:"name"`
		Questions []string `yaml:"questions"`
	} `yaml:"categories"`
}

// Corpus is an ordered, categorised set of scripted questions. It is
// immutable after construction.
type Corpus struct {
	order     []string
	questions map[string][]string
}

// NewCorpus builds a corpus from category name to questions. Categories are
// ordered by name.
func NewCorpus(m map[string][]string) *Corpus {
	c := &Corpus{questions: map[string][]string{}}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, n := range names {
		c.add(n, m[n])
	}
	return c
}

func (c *Corpus) add(name string, qs []string) {
	if _, ok := c.questions[name]; !ok {
		c.order = append(c.order, name)
	}
	for _, q := range qs {
		if q = strings.TrimSpace(q); q != "" {
			c.questions[name] = append(c.questions[name], q)
		}
	}
}

// LoadCorpus decodes a YAML corpus:
//
//	categories:
//	  - name: nutrition
//	    questions:
//	      - How many calories have I eaten today?
func LoadCorpus(r io.Reader) (*Corpus, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f corpusFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("stress: decode corpus: %w", err)
	}
	c := &Corpus{questions: map[string][]string{}}
	for i, cat := range f.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			return nil, fmt.Errorf("stress: corpus category %d has no name", i)
		}
		c.add(cat.Name, cat.Questions)
	}
	if c.Len() == 0 {
		return nil, errors.New("stress: corpus has no questions")
	}
	return c, nil
}

// LoadCorpusFile reads a YAML corpus from path.
func LoadCorpusFile(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stress: open corpus: %w", err)
	}
	defer f.Close()
	return LoadCorpus(f)
}

// Categories returns the category names in corpus order.
func (c *Corpus) Categories() []string {
	return slices.Clone(c.order)
}

// Len returns the total number of questions.
func (c *Corpus) Len() int {
	n := 0
	for _, qs := range c.questions {
		n += len(qs)
	}
	return n
}

// Select returns the questions of the named categories in corpus order. An
// empty selection means every category.
func (c *Corpus) Select(categories ...string) ([]Question, error) {
	names := c.order
	if len(categories) > 0 {
		for _, name := range categories {
			if _, ok := c.questions[name]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
			}
		}
		names = categories
	}
	var out []Question
	for _, name := range c.order {
		if !slices.Contains(names, name) {
			continue
		}
		for _, q := range c.questions[name] {
			out = append(out, Question{Category: name, Text: q})
		}
	}
	return out, nil
}

// QuickSubset returns the first perCategory questions of every category.
func (c *Corpus) QuickSubset(perCategory int) []Question {
	var out []Question
	for _, name := range c.order {
		qs := c.questions[name]
		if len(qs) > perCategory {
			qs = qs[:perCategory]
		}
		for _, q := range qs {
			out = append(out, Question{Category: name, Text: q})
		}
	}
	return out
}

// DefaultCorpus returns the built-in question battery from corpus.yaml.
func DefaultCorpus() *Corpus {
	return defaultCorpus()
}

//go:embed corpus.yaml
var builtinYAML []byte

var defaultCorpus = sync.OnceValue(func() *Corpus {
	c, err := LoadCorpus(bytes.NewReader(builtinYAML))
	if err != nil {
		panic(fmt.Sprintf("stress: built-in corpus: %v", err))
	}
	return c
})
