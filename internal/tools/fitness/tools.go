package fitness

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MrWong99/fitcoach/internal/tool"
)

// Limits applied to model-supplied arguments.
const (
	defaultHistoryDays  = 7
	maxHistoryDays      = 90
	defaultSearchLimit  = 5
	maxSearchLimit      = 20
	defaultWorkoutMin   = 30
	defaultPortionGrams = 100
	minWorkoutExercises = 3
	maxWorkoutExercises = 8
	minutesPerExercise  = 8
)

var (
	focusValues     = []string{"full-body", "upper", "lower", "push", "pull", "legs", "core", "cardio"}
	levelValues     = []string{"beginner", "intermediate", "advanced"}
	equipmentValues = []string{"bodyweight", "dumbbell", "barbell"}
)

// Deps are the collaborators of the fitness tools.
type Deps struct {
	Nutrition NutritionService
	Exercises ExerciseCatalog
	History   WorkoutHistory

	// Now is the clock used to resolve relative dates. Defaults to time.Now.
	Now func() time.Time
}

// Names lists the tools registered by [Register] in registration order.
var Names = []string{
	"getNutritionStatus",
	"lookupFood",
	"searchExercises",
	"getExerciseDetails",
	"suggestWorkout",
	"getWorkoutHistory",
}

// Register adds the fitness tools to reg. Tools whose collaborator is nil are
// skipped.
func Register(reg *tool.Registry, d Deps) error {
	if d.Now == nil {
		d.Now = time.Now
	}
	t := &tools{d: d}

	var errs []error
	add := func(s tool.Schema, exec tool.Executor) {
		if err := reg.Register(s, exec); err != nil {
			errs = append(errs, err)
		}
	}

	if d.Nutrition != nil {
		add(tool.Schema{
			Name:        "getNutritionStatus",
			Description: "Get the user's calories, protein, carbs, fat and water eaten on a day, with their targets and what remains.",
			Params: []tool.Param{
				{Name: "userId", Kind: tool.KindString, Required: true, FromContext: tool.ContextUserID, Description: "The user's ID."},
				{Name: "date", Kind: tool.KindString, Description: `"today", "yesterday" or a date as YYYY-MM-DD. Defaults to today.`},
			},
		}, t.nutritionStatus)
		add(tool.Schema{
			Name:        "lookupFood",
			Description: "Look up the calories and macros of a food for a portion size.",
			Params: []tool.Param{
				{Name: "food", Kind: tool.KindString, Required: true, Description: "Food name, e.g. \"chicken breast\"."},
				{Name: "grams", Kind: tool.KindNumber, Description: "Portion size in grams. Defaults to 100."},
			},
		}, t.lookupFood)
	}
	if d.Exercises != nil {
		add(tool.Schema{
			Name:        "searchExercises",
			Description: "Search the exercise catalog by muscle, equipment, difficulty or name.",
			Params: []tool.Param{
				{Name: "query", Kind: tool.KindString, Description: "Free text such as an exercise name or muscle."},
				{Name: "muscle", Kind: tool.KindString, Description: "Target muscle, e.g. chest, glutes, core."},
				{Name: "equipment", Kind: tool.KindEnum, Enum: equipmentValues},
				{Name: "level", Kind: tool.KindEnum, Enum: levelValues, FromContext: "profile.level"},
				{Name: "limit", Kind: tool.KindNumber, Description: "Maximum results, 1 to 20."},
			},
		}, t.searchExercises)
		add(tool.Schema{
			Name:        "getExerciseDetails",
			Description: "Get the target muscles, equipment and step-by-step instructions of one exercise.",
			Params: []tool.Param{
				{Name: "exercise", Kind: tool.KindString, Required: true, Description: "Exercise name or ID."},
			},
		}, t.exerciseDetails)
		add(tool.Schema{
			Name:        "suggestWorkout",
			Description: "Build a workout for a focus area, duration and experience level.",
			Params: []tool.Param{
				{Name: "focus", Kind: tool.KindEnum, Enum: focusValues, Required: true},
				{Name: "durationMinutes", Kind: tool.KindNumber, Description: "Session length in minutes. Defaults to 30."},
				{Name: "level", Kind: tool.KindEnum, Enum: levelValues, FromContext: "profile.level"},
				{Name: "equipment", Kind: tool.KindEnum, Enum: equipmentValues},
			},
		}, t.suggestWorkout)
	}
	if d.History != nil {
		add(tool.Schema{
			Name:        "getWorkoutHistory",
			Description: "List the user's logged workouts over the last few days.",
			Params: []tool.Param{
				{Name: "userId", Kind: tool.KindString, Required: true, FromContext: tool.ContextUserID, Description: "The user's ID."},
				{Name: "days", Kind: tool.KindNumber, Description: "How many days back to look, 1 to 90. Defaults to 7."},
			},
		}, t.workoutHistory)
	}
	if len(errs) > 0 {
		return fmt.Errorf("fitness: register tools: %w", errors.Join(errs...))
	}
	return nil
}

type tools struct {
	d Deps
}

func (t *tools) nutritionStatus(ctx context.Context, args map[string]any) (tool.Outcome, error) {
	userID := stringArg(args, "userId")
	day, err := t.resolveDate(stringArg(args, "date"))
	if err != nil {
		return tool.Outcome{}, err
	}
	s, ok, err := t.d.Nutrition.Status(ctx, userID, day)
	if err != nil {
		return tool.Outcome{}, fmt.Errorf("fitness: nutrition status: %w", err)
	}
	if !ok {
		return tool.Outcome{Error: fmt.Sprintf("no meals logged on %s", day.Format(time.DateOnly))}, nil
	}
	return tool.Outcome{Success: true, Data: map[string]any{
		"date":      s.Date,
		"eaten":     s.Eaten,
		"target":    s.Target,
		"remaining": s.Remaining(),
		"waterMl":   s.WaterMl,
		"meals":     s.Meals,
	}}, nil
}

func (t *tools) lookupFood(ctx context.Context, args map[string]any) (tool.Outcome, error) {
	name := stringArg(args, "food")
	grams := numberArg(args, "grams", defaultPortionGrams)
	if grams <= 0 {
		grams = defaultPortionGrams
	}
	f, ok, err := t.d.Nutrition.LookupFood(ctx, name)
	if err != nil {
		return tool.Outcome{}, fmt.Errorf("fitness: lookup food: %w", err)
	}
	if !ok {
		return tool.Outcome{Error: fmt.Sprintf("no food matching %q", name)}, nil
	}
	k := grams / 100
	return tool.Outcome{Success: true, Data: map[string]any{
		"food":     f.Name,
		"grams":    grams,
		"calories": round1(f.Calories * k),
		"protein":  round1(f.Protein * k),
		"carbs":    round1(f.Carbs * k),
		"fat":      round1(f.Fat * k),
		"fiber":    round1(f.Fiber * k),
	}}, nil
}

func (t *tools) searchExercises(ctx context.Context, args map[string]any) (tool.Outcome, error) {
	limit := int(numberArg(args, "limit", defaultSearchLimit))
	limit = min(max(limit, 1), maxSearchLimit)
	q := ExerciseQuery{
		Text:      stringArg(args, "query"),
		Muscle:    stringArg(args, "muscle"),
		Equipment: stringArg(args, "equipment"),
		Level:     stringArg(args, "level"),
		Limit:     limit,
	}
	found, err := t.d.Exercises.Search(ctx, q)
	if err != nil {
		return tool.Outcome{}, fmt.Errorf("fitness: search exercises: %w", err)
	}
	if len(found) == 0 {
		return tool.Outcome{Error: "no exercises match the search"}, nil
	}
	out := make([]map[string]any, 0, len(found))
	for _, e := range found {
		out = append(out, map[string]any{
			"id":        e.ID,
			"name":      e.Name,
			"muscles":   e.Muscles,
			"equipment": e.Equipment,
			"level":     e.Level,
		})
	}
	return tool.Outcome{Success: true, Data: out}, nil
}

func (t *tools) exerciseDetails(ctx context.Context, args map[string]any) (tool.Outcome, error) {
	name := stringArg(args, "exercise")
	e, ok, err := t.d.Exercises.Exercise(ctx, name)
	if err != nil {
		return tool.Outcome{}, fmt.Errorf("fitness: exercise details: %w", err)
	}
	if !ok {
		return tool.Outcome{Error: fmt.Sprintf("no exercise called %q", name)}, nil
	}
	return tool.Outcome{Success: true, Data: e}, nil
}

func (t *tools) workoutHistory(ctx context.Context, args map[string]any) (tool.Outcome, error) {
	userID := stringArg(args, "userId")
	days := int(numberArg(args, "days", defaultHistoryDays))
	days = min(max(days, 1), maxHistoryDays)

	now := t.d.Now()
	since := startOfDay(now).AddDate(0, 0, -days)
	sessions, err := t.d.History.Sessions(ctx, userID, since)
	if err != nil {
		return tool.Outcome{}, fmt.Errorf("fitness: workout history: %w", err)
	}
	if len(sessions) == 0 {
		return tool.Outcome{Error: fmt.Sprintf("no workouts logged in the last %d days", days)}, nil
	}
	total := 0
	for _, s := range sessions {
		total += s.DurationMin
	}
	return tool.Outcome{Success: true, Data: map[string]any{
		"days":          days,
		"sessions":      sessions,
		"count":         len(sessions),
		"totalMinutes":  total,
		"lastWorkoutAt": sessions[0].Date.Format(time.DateOnly),
	}}, nil
}

// exercisePlan is one line of a suggested workout.
type exercisePlan struct {
	Exercise string `json:"exercise"`
	ID       string `json:"id"`
	Sets     int    `json:"sets"`
	Reps     string `json:"reps"`
	RestSec  int    `json:"restSec"`
}

func (t *tools) suggestWorkout(ctx context.Context, args map[string]any) (tool.Outcome, error) {
	focus := strings.ToLower(stringArg(args, "focus"))
	level := strings.ToLower(stringArg(args, "level"))
	if level == "" {
		level = "beginner"
	}
	minutes := int(numberArg(args, "durationMinutes", defaultWorkoutMin))
	if minutes <= 0 {
		minutes = defaultWorkoutMin
	}

	found, err := t.d.Exercises.Search(ctx, ExerciseQuery{
		Muscle:    focus,
		Equipment: stringArg(args, "equipment"),
		Level:     level,
	})
	if err != nil {
		return tool.Outcome{}, fmt.Errorf("fitness: suggest workout: %w", err)
	}
	if len(found) == 0 {
		return tool.Outcome{Error: fmt.Sprintf("no %s exercises available for a %s", focus, level)}, nil
	}

	n := min(max(minutes/minutesPerExercise, minWorkoutExercises), maxWorkoutExercises, len(found))
	sets, reps, rest := prescription(level, focus)
	plan := make([]exercisePlan, 0, n)
	for _, e := range found[:n] {
		plan = append(plan, exercisePlan{Exercise: e.Name, ID: e.ID, Sets: sets, Reps: reps, RestSec: rest})
	}
	return tool.Outcome{Success: true, Data: map[string]any{
		"focus":           focus,
		"level":           level,
		"durationMinutes": minutes,
		"warmup":          "5 minutes of light cardio and dynamic stretches",
		"exercises":       plan,
		"cooldown":        "5 minutes of stretching",
	}}, nil
}

func prescription(level, focus string) (sets int, reps string, restSec int) {
	if focus == "cardio" {
		return 4, "40s on / 20s off", 60
	}
	switch level {
	case "advanced":
		return 4, "6-8", 120
	case "intermediate":
		return 3, "8-12", 90
	default:
		return 3, "10-12", 60
	}
}

// resolveDate parses "today", "yesterday", "" and YYYY-MM-DD in the clock's
// location.
func (t *tools) resolveDate(s string) (time.Time, error) {
	now := t.d.Now()
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return now, nil
	case "yesterday":
		return now.AddDate(0, 0, -1), nil
	}
	d, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("fitness: invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

func numberArg(args map[string]any, name string, def float64) float64 {
	switch v := args[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
