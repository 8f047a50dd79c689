// Package questions loads the built-in lesson question catalog and samples
// questions for a session without repetition.
package questions

import (
	"embed"
	"errors"
	"fmt"
	"math/rand/v2"

	"gopkg.in/yaml.v3"

	"github.com/DesmondChoy/odyssey/pkg/models"
)

//go:embed catalog.yaml
var catalogFS embed.FS

// ErrNoQuestions is returned when a topic has no unused questions left.
var ErrNoQuestions = errors.New("no unused questions available for topic")

// catalogFile is the YAML shape of the embedded catalog.
type catalogFile struct {
	Topics []topicEntry `yaml:"topics"`
}

type topicEntry struct {
	Name      string          `yaml:"name"`
	Questions []questionEntry `yaml:"questions"`
}

type questionEntry struct {
	Question     string   `yaml:"question"`
	Answers      []string `yaml:"answers"`
	CorrectIndex int      `yaml:"correct_index"`
	Explanation  string   `yaml:"explanation"`
}

// Source is the loaded question catalog. Read-only after construction and
// safe for concurrent use.
type Source struct {
	byTopic map[string][]models.LessonQuestion
}

// Load parses the embedded catalog.
func Load() (*Source, error) {
	data, err := catalogFS.ReadFile("catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded catalog: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Source, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing question catalog: %w", err)
	}
	if len(file.Topics) == 0 {
		return nil, fmt.Errorf("question catalog has no topics")
	}

	byTopic := make(map[string][]models.LessonQuestion, len(file.Topics))
	for _, topic := range file.Topics {
		if topic.Name == "" {
			return nil, fmt.Errorf("question catalog topic missing name")
		}
		qs := make([]models.LessonQuestion, 0, len(topic.Questions))
		for i, q := range topic.Questions {
			if q.Question == "" || len(q.Answers) < 2 {
				return nil, fmt.Errorf("topic %q question %d is malformed", topic.Name, i)
			}
			if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Answers) {
				return nil, fmt.Errorf("topic %q question %d correct_index %d out of range",
					topic.Name, i, q.CorrectIndex)
			}
			qs = append(qs, models.LessonQuestion{
				Topic:        topic.Name,
				Question:     q.Question,
				Answers:      q.Answers,
				CorrectIndex: q.CorrectIndex,
				Explanation:  q.Explanation,
			})
		}
		byTopic[topic.Name] = qs
	}
	return &Source{byTopic: byTopic}, nil
}

// Topics lists the available lesson topics.
func (s *Source) Topics() []string {
	out := make([]string, 0, len(s.byTopic))
	for name := range s.byTopic {
		out = append(out, name)
	}
	return out
}

// Available returns how many questions exist for a topic.
func (s *Source) Available(topic string) int {
	return len(s.byTopic[topic])
}

// NewSampler creates a per-session sampler for one topic. alreadyUsed
// seeds the exclusion set so resumed sessions never repeat a question.
func (s *Source) NewSampler(topic string, rng *rand.Rand, alreadyUsed []string) *Sampler {
	used := make(map[string]bool, len(alreadyUsed))
	for _, q := range alreadyUsed {
		used[q] = true
	}
	return &Sampler{
		pool: s.byTopic[topic],
		rng:  rng,
		used: used,
	}
}

// Sampler draws questions for a single session. Questions are unique
// within the session. Not safe for concurrent use; the engine samples
// only from its own goroutine.
type Sampler struct {
	pool []models.LessonQuestion
	rng  *rand.Rand
	used map[string]bool
}

// Remaining returns how many unused questions are left.
func (sm *Sampler) Remaining() int {
	n := 0
	for _, q := range sm.pool {
		if !sm.used[q.Question] {
			n++
		}
	}
	return n
}

// Sample draws a random unused question, or ErrNoQuestions.
func (sm *Sampler) Sample() (models.LessonQuestion, error) {
	candidates := make([]models.LessonQuestion, 0, len(sm.pool))
	for _, q := range sm.pool {
		if !sm.used[q.Question] {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		return models.LessonQuestion{}, ErrNoQuestions
	}
	pick := candidates[0]
	if sm.rng != nil {
		pick = candidates[sm.rng.IntN(len(candidates))]
	}
	sm.used[pick.Question] = true
	return pick, nil
}
