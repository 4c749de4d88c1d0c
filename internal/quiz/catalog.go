package quiz

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Catalog is an ordered, read-only list of questions.
type Catalog struct {
	questions []Question
}

// NewCatalog returns a Catalog over a copy of qs.
func NewCatalog(qs ...Question) *Catalog {
	return &Catalog{questions: slices.Clone(qs)}
}

// Len returns the number of questions.
func (c *Catalog) Len() int { return len(c.questions) }

// At returns the i-th question. It panics when i is out of range, like a
// slice index.
func (c *Catalog) At(i int) Question { return c.questions[i] }

// Questions returns a copy of all questions in order.
func (c *Catalog) Questions() []Question { return slices.Clone(c.questions) }

// Shuffled returns a new Catalog with the same questions in random order.
func (c *Catalog) Shuffled() *Catalog {
	qs := slices.Clone(c.questions)
	rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	return &Catalog{questions: qs}
}

// catalogFile is the YAML layout accepted by [LoadCatalog].
type catalogFile struct {
	Questions []struct {
		Clue       string   `yaml:"clue"`
		Answer     string   `yaml:"answer"`
		Acceptable []string `yaml:"acceptable"`
	} `yaml:"questions"`
}

// LoadCatalog reads a YAML question catalog from path.
//
//	questions:
//	  - clue: "🦈🏊‍♂️🩸🏖️"
//	    answer: Jaws
//	    acceptable: [jaws, joz, jawz, joss]
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("quiz: open catalog %q: %w", path, err)
	}
	defer f.Close()

	c, err := LoadCatalogFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("quiz: parse catalog %q: %w", path, err)
	}
	return c, nil
}

// LoadCatalogFromReader decodes a YAML catalog from r. Every entry is
// validated; all failures are reported together.
func LoadCatalogFromReader(r io.Reader) (*Catalog, error) {
	var cf catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("quiz: decode yaml: %w", err)
	}

	var errs []error
	qs := make([]Question, 0, len(cf.Questions))
	for i, e := range cf.Questions {
		if e.Clue == "" {
			errs = append(errs, fmt.Errorf("questions[%d].clue is required", i))
		}
		q, err := NewQuestion(e.Clue, e.Answer, e.Acceptable...)
		if err != nil {
			errs = append(errs, fmt.Errorf("questions[%d]: %w", i, err))
			continue
		}
		qs = append(qs, q)
	}
	if len(cf.Questions) == 0 {
		errs = append(errs, errors.New("catalog contains no questions"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return NewCatalog(qs...), nil
}

// DefaultCatalog returns the built-in movie catalog. The acceptable lists
// include the mishearings speech recognisers commonly produce for each title.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		MustQuestion("🦁👑🌍", "The Lion King",
			"lion king", "the lion king", "lying king", "line king"),
		MustQuestion("🚢❄️💑💔", "Titanic",
			"titanic", "titenic", "titannick", "the titanic"),
		MustQuestion("🕷️🦸‍♂️🏙️", "Spider-Man",
			"spider man", "spiderman", "spider-man", "spyder man", "spider men"),
		MustQuestion("🧙‍♂️💍🌋🗡️", "The Lord of the Rings",
			"lord of the rings", "the lord of the rings", "lotr", "lord of rings", "lord of the ring"),
		MustQuestion("👻🔫👨‍🔬🏠", "Ghostbusters",
			"ghostbusters", "ghost busters", "ghostbuster", "ghost buster", "goes busters"),
		MustQuestion("🦈🏊‍♂️🩸🏖️", "Jaws",
			"jaws", "joz", "jawz", "joss"),
		MustQuestion("🧊👸❄️⛄", "Frozen",
			"frozen", "froze in", "frozen movie"),
		MustQuestion("🏴‍☠️💀⚓🗺️", "Pirates of the Caribbean",
			"pirates of the caribbean", "pirates of caribbean", "pirates", "pirates caribbean",
			"pirate of the caribbean", "pirate caribbean"),
		MustQuestion("🤖❤️🌱🚀", "WALL-E",
			"wall-e", "walle", "wall e", "wally", "walley", "wali", "wally e"),
		MustQuestion("🦇🃏🌃🦸", "The Dark Knight",
			"the dark knight", "dark knight", "batman", "dark night", "the dark night"),
	)
}
