package fitness

var builtinFoods = []Food{
	{Name: "chicken breast", Aliases: []string{"chicken"}, Calories: 165, Protein: 31, Carbs: 0, Fat: 3.6, Fiber: 0},
	{Name: "banana", Calories: 89, Protein: 1.1, Carbs: 22.8, Fat: 0.3, Fiber: 2.6},
	{Name: "apple", Calories: 52, Protein: 0.3, Carbs: 13.8, Fat: 0.2, Fiber: 2.4},
	{Name: "pear", Calories: 57, Protein: 0.4, Carbs: 15.2, Fat: 0.1, Fiber: 3.1},
	{Name: "greek yogurt", Aliases: []string{"greek yoghurt"}, Calories: 59, Protein: 10, Carbs: 3.6, Fat: 0.4, Fiber: 0},
	{Name: "white rice", Aliases: []string{"rice"}, Calories: 130, Protein: 2.7, Carbs: 28, Fat: 0.3, Fiber: 0.4},
	{Name: "quinoa", Calories: 120, Protein: 4.4, Carbs: 21.3, Fat: 1.9, Fiber: 2.8},
	{Name: "rolled oats", Aliases: []string{"oats", "oatmeal"}, Calories: 389, Protein: 16.9, Carbs: 66.3, Fat: 6.9, Fiber: 10.6},
	{Name: "egg", Aliases: []string{"eggs"}, Calories: 155, Protein: 13, Carbs: 1.1, Fat: 11, Fiber: 0},
	{Name: "salmon", Calories: 208, Protein: 20, Carbs: 0, Fat: 13, Fiber: 0},
	{Name: "broccoli", Calories: 34, Protein: 2.8, Carbs: 6.6, Fat: 0.4, Fiber: 2.6},
	{Name: "almonds", Calories: 579, Protein: 21, Carbs: 21.6, Fat: 49.9, Fiber: 12.5},
	{Name: "sweet potato", Calories: 86, Protein: 1.6, Carbs: 20.1, Fat: 0.1, Fiber: 3},
	{Name: "cottage cheese", Calories: 98, Protein: 11.1, Carbs: 3.4, Fat: 4.3, Fiber: 0},
	{Name: "lentils", Calories: 116, Protein: 9, Carbs: 20.1, Fat: 0.4, Fiber: 7.9},
	{Name: "whey protein", Aliases: []string{"protein powder"}, Calories: 400, Protein: 80, Carbs: 8, Fat: 6, Fiber: 0},
}

var builtinExercises = []Exercise{
	{ID: "bench-press", Name: "Bench Press", Muscles: []string{"chest", "triceps", "shoulders"}, Equipment: "barbell", Level: "intermediate", Focus: []string{"push", "upper"},
		Instructions: []string{"Lie on the bench with eyes under the bar.", "Lower the bar to mid-chest with elbows at about 45 degrees.", "Press back up until the arms are straight."}},
	{ID: "push-up", Name: "Push-Up", Muscles: []string{"chest", "triceps", "core"}, Equipment: "bodyweight", Level: "beginner", Focus: []string{"push", "upper", "full-body"},
		Instructions: []string{"Hands slightly wider than shoulders.", "Keep a straight line from head to heels.", "Lower until the chest nearly touches the floor, then push up."}},
	{ID: "dumbbell-fly", Name: "Dumbbell Fly", Muscles: []string{"chest"}, Equipment: "dumbbell", Level: "beginner", Focus: []string{"push", "upper"}},
	{ID: "overhead-press", Name: "Overhead Press", Muscles: []string{"shoulders", "triceps"}, Equipment: "barbell", Level: "intermediate", Focus: []string{"push", "upper"}},
	{ID: "dip", Name: "Dip", Muscles: []string{"triceps", "chest"}, Equipment: "bodyweight", Level: "intermediate", Focus: []string{"push", "upper"}},
	{ID: "pull-up", Name: "Pull-Up", Muscles: []string{"back", "biceps"}, Equipment: "bodyweight", Level: "intermediate", Focus: []string{"pull", "upper"}},
	{ID: "bent-over-row", Name: "Bent-Over Row", Muscles: []string{"back", "biceps"}, Equipment: "barbell", Level: "intermediate", Focus: []string{"pull", "upper"}},
	{ID: "dumbbell-row", Name: "One-Arm Dumbbell Row", Muscles: []string{"back", "biceps"}, Equipment: "dumbbell", Level: "beginner", Focus: []string{"pull", "upper"}},
	{ID: "deadlift", Name: "Deadlift", Muscles: []string{"back", "glutes", "hamstrings"}, Equipment: "barbell", Level: "advanced", Focus: []string{"pull", "lower", "full-body"},
		Instructions: []string{"Stand with mid-foot under the bar.", "Hinge and grip the bar just outside the legs.", "Brace, keep the back neutral, and drive through the floor until standing tall."}},
	{ID: "back-squat", Name: "Back Squat", Muscles: []string{"quads", "glutes", "core"}, Equipment: "barbell", Level: "intermediate", Focus: []string{"legs", "lower", "full-body"}},
	{ID: "goblet-squat", Name: "Goblet Squat", Muscles: []string{"quads", "glutes"}, Equipment: "dumbbell", Level: "beginner", Focus: []string{"legs", "lower", "full-body"}},
	{ID: "romanian-deadlift", Name: "Romanian Deadlift", Muscles: []string{"hamstrings", "glutes"}, Equipment: "barbell", Level: "intermediate", Focus: []string{"legs", "lower"}},
	{ID: "glute-bridge", Name: "Glute Bridge", Muscles: []string{"glutes", "hamstrings"}, Equipment: "bodyweight", Level: "beginner", Focus: []string{"legs", "lower"},
		Instructions: []string{"Lie on your back with knees bent.", "Drive through the heels and lift the hips.", "Squeeze the glutes at the top and lower slowly."}},
	{ID: "walking-lunge", Name: "Walking Lunge", Muscles: []string{"quads", "glutes"}, Equipment: "bodyweight", Level: "beginner", Focus: []string{"legs", "lower", "full-body"}},
	{ID: "step-up", Name: "Step-Up", Muscles: []string{"quads", "glutes"}, Equipment: "bodyweight", Level: "beginner", Focus: []string{"legs", "lower"}},
	{ID: "plank", Name: "Plank", Muscles: []string{"core"}, Equipment: "bodyweight", Level: "beginner", Focus: []string{"core", "full-body"}},
	{ID: "dead-bug", Name: "Dead Bug", Muscles: []string{"core"}, Equipment: "bodyweight", Level: "beginner", Focus: []string{"core"}},
	{ID: "hanging-leg-raise", Name: "Hanging Leg Raise", Muscles: []string{"core"}, Equipment: "bodyweight", Level: "advanced", Focus: []string{"core"}},
	{ID: "burpee", Name: "Burpee", Muscles: []string{"full body"}, Equipment: "bodyweight", Level: "intermediate", Focus: []string{"cardio", "full-body"}},
	{ID: "mountain-climber", Name: "Mountain Climber", Muscles: []string{"core", "shoulders"}, Equipment: "bodyweight", Level: "beginner", Focus: []string{"cardio", "core"}},
	{ID: "jump-squat", Name: "Jump Squat", Muscles: []string{"quads", "glutes"}, Equipment: "bodyweight", Level: "intermediate", Focus: []string{"cardio", "legs"}},
	{ID: "bicep-curl", Name: "Dumbbell Bicep Curl", Muscles: []string{"biceps"}, Equipment: "dumbbell", Level: "beginner", Focus: []string{"pull", "upper"}},
}
