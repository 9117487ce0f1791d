package fitness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/fitcoach/internal/tool"
	"github.com/MrWong99/fitcoach/pkg/types"
)

var testNow = time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	cat := NewDemoCatalog("demo-user", testNow)
	reg := tool.NewRegistry()
	if err := Register(reg, Deps{Nutrition: cat, Exercises: cat, History: cat, Now: func() time.Time { return testNow }}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func outcomeData(t *testing.T, rec tool.Record) any {
	t.Helper()
	out, ok := rec.Result.(tool.Outcome)
	if !ok {
		t.Fatalf("Result = %T, want tool.Outcome", rec.Result)
	}
	return out.Data
}

func TestRegister_AllTools(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	schemas := reg.Schemas()
	if len(schemas) != len(Names) {
		t.Fatalf("registered %d tools, want %d", len(schemas), len(Names))
	}
	for i, s := range schemas {
		if s.Name != Names[i] {
			t.Errorf("tool %d = %s, want %s", i, s.Name, Names[i])
		}
	}
	if err := Register(reg, Deps{Nutrition: NewStaticCatalog()}); err == nil {
		t.Error("second registration must fail with duplicates")
	}
}

func TestRegister_SkipsMissingDeps(t *testing.T) {
	t.Parallel()
	reg := tool.NewRegistry()
	if err := Register(reg, Deps{History: NewStaticCatalog()}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
}

func TestNutritionStatus(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		args     map[string]any
		wantOK   bool
		wantCat  types.ErrorCategory
		wantDate string
	}{
		{name: "today", args: map[string]any{"userId": "demo-user"}, wantOK: true, wantDate: "2025-06-02"},
		{name: "yesterday", args: map[string]any{"userId": "demo-user", "date": "yesterday"}, wantOK: true, wantDate: "2025-06-01"},
		{name: "explicit date", args: map[string]any{"userId": "demo-user", "date": "2025-06-01"}, wantOK: true, wantDate: "2025-06-01"},
		{name: "nothing logged", args: map[string]any{"userId": "demo-user", "date": "2025-05-01"}, wantCat: types.CategoryDataNotFound},
		{name: "unknown user", args: map[string]any{"userId": "ghost"}, wantCat: types.CategoryDataNotFound},
		{name: "bad date", args: map[string]any{"userId": "demo-user", "date": "February 30th"}, wantCat: types.CategoryToolExecutionFailed},
		{name: "missing user", args: map[string]any{}, wantCat: types.CategoryToolMissingParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := reg.Execute(ctx, "getNutritionStatus", tt.args)
			if rec.Success != tt.wantOK {
				t.Fatalf("Success = %v (%+v)", rec.Success, rec.Error)
			}
			if !tt.wantOK {
				if rec.Error.Category != tt.wantCat {
					t.Errorf("category = %s, want %s", rec.Error.Category, tt.wantCat)
				}
				return
			}
			data := outcomeData(t, rec).(map[string]any)
			if data["date"] != tt.wantDate {
				t.Errorf("date = %v, want %s", data["date"], tt.wantDate)
			}
		})
	}

	rec := reg.Execute(ctx, "getNutritionStatus", map[string]any{"userId": "demo-user"})
	rem := outcomeData(t, rec).(map[string]any)["remaining"].(Macros)
	if rem.Calories != 950 || rem.Protein != 68 {
		t.Errorf("remaining = %+v", rem)
	}
}

func TestLookupFood(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		args         map[string]any
		wantFood     string
		wantCalories float64
	}{
		{name: "exact", args: map[string]any{"food": "Banana"}, wantFood: "banana", wantCalories: 89},
		{name: "alias", args: map[string]any{"food": "chicken"}, wantFood: "chicken breast", wantCalories: 165},
		{name: "typo", args: map[string]any{"food": "brocolli"}, wantFood: "broccoli", wantCalories: 34},
		{name: "portion", args: map[string]any{"food": "oats", "grams": float64(50)}, wantFood: "rolled oats", wantCalories: 194.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := reg.Execute(ctx, "lookupFood", tt.args)
			if !rec.Success {
				t.Fatalf("lookupFood failed: %+v", rec.Error)
			}
			data := outcomeData(t, rec).(map[string]any)
			if data["food"] != tt.wantFood || data["calories"] != tt.wantCalories {
				t.Errorf("got %v / %v, want %s / %v", data["food"], data["calories"], tt.wantFood, tt.wantCalories)
			}
		})
	}

	rec := reg.Execute(ctx, "lookupFood", map[string]any{"food": "flurbo"})
	if rec.Success || rec.Error.Category != types.CategoryDataNotFound {
		t.Errorf("unknown food = %+v", rec.Error)
	}
}

func TestSearchExercises(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	ctx := context.Background()

	rec := reg.Execute(ctx, "searchExercises", map[string]any{"muscle": "chest"})
	if !rec.Success {
		t.Fatalf("search failed: %+v", rec.Error)
	}
	got := outcomeData(t, rec).([]map[string]any)
	if len(got) != 4 {
		t.Errorf("chest exercises = %d, want 4", len(got))
	}

	rec = reg.Execute(ctx, "searchExercises", map[string]any{"muscle": "glutes", "equipment": "bodyweight", "level": "beginner"})
	for _, e := range outcomeData(t, rec).([]map[string]any) {
		if e["equipment"] != "bodyweight" || e["level"] != "beginner" {
			t.Errorf("filter leak: %v", e)
		}
	}

	rec = reg.Execute(ctx, "searchExercises", map[string]any{"muscle": "flurbo"})
	if rec.Success || rec.Error.Category != types.CategoryDataNotFound {
		t.Errorf("flurbo = %+v", rec.Error)
	}

	rec = reg.Execute(ctx, "searchExercises", map[string]any{"equipment": "kettlebell"})
	if rec.Error == nil || rec.Error.Category != types.CategoryToolMissingParams {
		t.Errorf("bad enum = %+v, want tool-missing-params", rec.Error)
	}
}

func TestGetExerciseDetails(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	for _, name := range []string{"deadlift", "Deadlift", "glute bridge"} {
		rec := reg.Execute(context.Background(), "getExerciseDetails", map[string]any{"exercise": name})
		if !rec.Success {
			t.Errorf("%q: %+v", name, rec.Error)
			continue
		}
		if e := outcomeData(t, rec).(Exercise); len(e.Instructions) == 0 {
			t.Errorf("%q: no instructions", name)
		}
	}
}

func TestGetWorkoutHistory(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	ctx := context.Background()

	tests := []struct {
		days      any
		wantCount int
	}{
		{days: nil, wantCount: 4},
		{days: float64(3), wantCount: 2},
		{days: float64(1), wantCount: 1},
		{days: float64(500), wantCount: 4},
	}
	for _, tt := range tests {
		args := map[string]any{"userId": "demo-user"}
		if tt.days != nil {
			args["days"] = tt.days
		}
		rec := reg.Execute(ctx, "getWorkoutHistory", args)
		if !rec.Success {
			t.Fatalf("days=%v: %+v", tt.days, rec.Error)
		}
		data := outcomeData(t, rec).(map[string]any)
		if data["count"] != tt.wantCount {
			t.Errorf("days=%v: count = %v, want %d", tt.days, data["count"], tt.wantCount)
		}
		if data["lastWorkoutAt"] != "2025-06-01" {
			t.Errorf("lastWorkoutAt = %v", data["lastWorkoutAt"])
		}
	}

	rec := reg.Execute(ctx, "getWorkoutHistory", map[string]any{"userId": "ghost"})
	if rec.Success || rec.Error.Category != types.CategoryDataNotFound {
		t.Errorf("ghost = %+v", rec.Error)
	}
}

func TestSuggestWorkout(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	ctx := context.Background()

	rec := reg.Execute(ctx, "suggestWorkout", map[string]any{"focus": "legs", "durationMinutes": float64(45), "level": "beginner"})
	if !rec.Success {
		t.Fatalf("suggestWorkout: %+v", rec.Error)
	}
	data := outcomeData(t, rec).(map[string]any)
	plan := data["exercises"].([]exercisePlan)
	if len(plan) < minWorkoutExercises || len(plan) > maxWorkoutExercises {
		t.Errorf("plan has %d exercises", len(plan))
	}
	for _, p := range plan {
		if p.ID == "back-squat" || p.ID == "romanian-deadlift" {
			t.Errorf("beginner plan contains %s", p.ID)
		}
		if p.Reps != "10-12" {
			t.Errorf("reps = %s", p.Reps)
		}
	}

	rec = reg.Execute(ctx, "suggestWorkout", map[string]any{"focus": "core", "level": "beginner", "equipment": "barbell"})
	if rec.Success || rec.Error.Category != types.CategoryDataNotFound {
		t.Errorf("barbell core = %+v", rec.Error)
	}
}

type failingCatalog struct{ *StaticCatalog }

func (failingCatalog) Sessions(context.Context, string, time.Time) ([]Session, error) {
	return nil, errors.New("connection refused")
}

func TestCollaboratorErrors(t *testing.T) {
	t.Parallel()
	reg := tool.NewRegistry()
	if err := Register(reg, Deps{History: failingCatalog{NewStaticCatalog()}}); err != nil {
		t.Fatal(err)
	}
	rec := reg.Execute(context.Background(), "getWorkoutHistory", map[string]any{"userId": "u"})
	if rec.Success || rec.Error.Category != types.CategoryToolExecutionFailed {
		t.Errorf("rec = %+v, want tool-execution-failed", rec.Error)
	}
}
