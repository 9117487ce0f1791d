package fitness

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
)

// foodMatchThreshold is the minimum Jaro-Winkler similarity for a fuzzy food
// match.
const foodMatchThreshold = 0.88

// StaticCatalog is an in-memory [NutritionService], [ExerciseCatalog] and
// [WorkoutHistory]. It is safe for concurrent use.
type StaticCatalog struct {
	foods     []Food
	exercises []Exercise

	mu        sync.RWMutex
	nutrition map[string]map[string]NutritionStatus // user -> yyyy-mm-dd -> status
	sessions  map[string][]Session                  // user -> sessions, newest first
}

var (
	_ NutritionService = (*StaticCatalog)(nil)
	_ ExerciseCatalog  = (*StaticCatalog)(nil)
	_ WorkoutHistory   = (*StaticCatalog)(nil)
)

// NewStaticCatalog returns a catalog with the built-in foods and exercises
// and no user data.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		foods:     slices.Clone(builtinFoods),
		exercises: slices.Clone(builtinExercises),
		nutrition: map[string]map[string]NutritionStatus{},
		sessions:  map[string][]Session{},
	}
}

// NewDemoCatalog returns a static catalog with a week of sample data for
// userID, relative to now.
func NewDemoCatalog(userID string, now time.Time) *StaticCatalog {
	c := NewStaticCatalog()
	target := Macros{Calories: 2400, Protein: 160, Carbs: 260, Fat: 80}
	c.SetNutrition(userID, NutritionStatus{
		Date:    dayKey(now),
		Eaten:   Macros{Calories: 1450, Protein: 92, Carbs: 150, Fat: 48},
		Target:  target,
		WaterMl: 1250,
		Meals:   2,
	})
	c.SetNutrition(userID, NutritionStatus{
		Date:    dayKey(now.AddDate(0, 0, -1)),
		Eaten:   Macros{Calories: 2310, Protein: 148, Carbs: 271, Fat: 77},
		Target:  target,
		WaterMl: 2600,
		Meals:   4,
	})
	day := func(n int) time.Time { return now.AddDate(0, 0, -n) }
	c.AddSession(userID, Session{Date: day(6), Focus: "push", DurationMin: 55, Exercises: []string{"bench-press", "overhead-press", "push-up"}})
	c.AddSession(userID, Session{Date: day(4), Focus: "legs", DurationMin: 60, Exercises: []string{"back-squat", "romanian-deadlift", "walking-lunge"}})
	c.AddSession(userID, Session{Date: day(2), Focus: "pull", DurationMin: 50, Exercises: []string{"deadlift", "pull-up", "bent-over-row"}})
	c.AddSession(userID, Session{Date: day(1), Focus: "cardio", DurationMin: 30, Exercises: []string{"burpee", "mountain-climber"}})
	return c
}

// SetNutrition stores the status of one day for userID, replacing any
// previous status for that date.
func (c *StaticCatalog) SetNutrition(userID string, s NutritionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	days, ok := c.nutrition[userID]
	if !ok {
		days = map[string]NutritionStatus{}
		c.nutrition[userID] = days
	}
	days[s.Date] = s
}

// AddSession logs a workout for userID.
func (c *StaticCatalog) AddSession(userID string, s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := append(c.sessions[userID], s)
	slices.SortStableFunc(all, func(a, b Session) int { return b.Date.Compare(a.Date) })
	c.sessions[userID] = all
}

// Status implements [NutritionService].
func (c *StaticCatalog) Status(_ context.Context, userID string, day time.Time) (NutritionStatus, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.nutrition[userID][dayKey(day)]
	return s, ok, nil
}

// LookupFood implements [NutritionService]. Names match exactly, then by
// alias, then by Jaro-Winkler similarity.
func (c *StaticCatalog) LookupFood(_ context.Context, name string) (Food, bool, error) {
	q := normalize(name)
	if q == "" {
		return Food{}, false, nil
	}
	best, bestScore := -1, 0.0
	for i, f := range c.foods {
		candidates := append([]string{f.Name}, f.Aliases...)
		for _, cand := range candidates {
			cand = normalize(cand)
			if cand == q {
				return f, true, nil
			}
			if score := matchr.JaroWinkler(q, cand, false); score > bestScore {
				best, bestScore = i, score
			}
		}
	}
	if best < 0 || bestScore < foodMatchThreshold {
		return Food{}, false, nil
	}
	return c.foods[best], true, nil
}

// Search implements [ExerciseCatalog].
func (c *StaticCatalog) Search(_ context.Context, q ExerciseQuery) ([]Exercise, error) {
	text := normalize(q.Text)
	muscle := normalize(q.Muscle)
	var out []Exercise
	for _, e := range c.exercises {
		if muscle != "" && !containsFold(e.Muscles, muscle) && !containsFold(e.Focus, muscle) {
			continue
		}
		if q.Equipment != "" && !strings.EqualFold(e.Equipment, q.Equipment) {
			continue
		}
		if q.Level != "" && !levelAllows(q.Level, e.Level) {
			continue
		}
		if text != "" && !matchesText(e, text) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Exercise implements [ExerciseCatalog].
func (c *StaticCatalog) Exercise(_ context.Context, idOrName string) (Exercise, bool, error) {
	q := normalize(idOrName)
	for _, e := range c.exercises {
		if e.ID == q || normalize(e.Name) == q || strings.ReplaceAll(q, " ", "-") == e.ID {
			return e, true, nil
		}
	}
	return Exercise{}, false, nil
}

// Sessions implements [WorkoutHistory].
func (c *StaticCatalog) Sessions(_ context.Context, userID string, since time.Time) ([]Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Session
	for _, s := range c.sessions[userID] {
		if s.Date.Before(since) {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

func dayKey(t time.Time) string { return t.Format(time.DateOnly) }

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func matchesText(e Exercise, text string) bool {
	if strings.Contains(strings.ToLower(e.Name), text) {
		return true
	}
	for _, m := range e.Muscles {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

var levels = map[string]int{"beginner": 0, "intermediate": 1, "advanced": 2}

// levelAllows reports whether an exercise of level have suits a user of
// level want.
func levelAllows(want, have string) bool {
	w, ok := levels[normalize(want)]
	if !ok {
		return true
	}
	return levels[normalize(have)] <= w
}
