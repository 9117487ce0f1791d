// Package fitness provides the built-in coaching tools: nutrition status,
// food lookup, exercise search and details, workout history, and workout
// suggestions.
//
// The tools talk to three collaborator interfaces. [StaticCatalog] is an
// in-memory implementation of all three so the binary and the stress corpus
// work without external services.
package fitness

import (
	"context"
	"time"
)

// Food is the nutrition profile of a food per 100 g.
type Food struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	Calories float64  `json:"calories"`
	Protein  float64  `json:"protein"`
	Carbs    float64  `json:"carbs"`
	Fat      float64  `json:"fat"`
	Fiber    float64  `json:"fiber"`
}

// Macros is a calorie and macro-nutrient total.
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// NutritionStatus is what a user has eaten on one day against their targets.
type NutritionStatus struct {
	Date    string `json:"date"`
	Eaten   Macros `json:"eaten"`
	Target  Macros `json:"target"`
	WaterMl int    `json:"waterMl"`
	Meals   int    `json:"meals"`
}

// Remaining returns Target minus Eaten.
func (s NutritionStatus) Remaining() Macros {
	return Macros{
		Calories: s.Target.Calories - s.Eaten.Calories,
		Protein:  s.Target.Protein - s.Eaten.Protein,
		Carbs:    s.Target.Carbs - s.Eaten.Carbs,
		Fat:      s.Target.Fat - s.Eaten.Fat,
	}
}

// Exercise is one catalog entry.
type Exercise struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Muscles      []string `json:"muscles"`
	Equipment    string   `json:"equipment"`
	Level        string   `json:"level"`
	Focus        []string `json:"focus"`
	Instructions []string `json:"instructions,omitempty"`
}

// ExerciseQuery filters [ExerciseCatalog.Search]. Empty fields match all.
type ExerciseQuery struct {
	Text      string
	Muscle    string
	Equipment string
	Level     string
	Limit     int
}

// Session is one logged workout.
type Session struct {
	Date        time.Time `json:"date"`
	Focus       string    `json:"focus"`
	DurationMin int       `json:"durationMin"`
	Exercises   []string  `json:"exercises"`
}

// NutritionService answers questions about what a user ate.
type NutritionService interface {
	// Status returns the user's totals for day. ok is false when nothing was
	// logged that day.
	Status(ctx context.Context, userID string, day time.Time) (status NutritionStatus, ok bool, err error)

	// LookupFood resolves a food by name. ok is false when nothing matches.
	LookupFood(ctx context.Context, name string) (food Food, ok bool, err error)
}

// ExerciseCatalog searches exercises.
type ExerciseCatalog interface {
	Search(ctx context.Context, q ExerciseQuery) ([]Exercise, error)
	Exercise(ctx context.Context, idOrName string) (Exercise, bool, error)
}

// WorkoutHistory returns logged sessions.
type WorkoutHistory interface {
	// Sessions returns the user's sessions on or after since, newest first.
	Sessions(ctx context.Context, userID string, since time.Time) ([]Session, error)
}
