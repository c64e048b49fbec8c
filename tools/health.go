// Package tools provides the health-data tool set bound into the engine's
// registry, plus JSON Schema helpers for tool definitions. Tools are pure
// reads: they never touch memory state.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vitalplane/agentmem/core"
)

// HeartRateSample is one day of heart-rate data.
type HeartRateSample struct {
	Date       string
	RestingBPM int
	AvgBPM     int
	MaxBPM     int
}

// StepsDay is one day of step data.
type StepsDay struct {
	Date       string
	Steps      int
	DistanceKm float64
}

// SleepNight is one night of sleep data.
type SleepNight struct {
	Date       string
	TotalHours float64
	DeepHours  float64
	RemHours   float64
}

// Workout is one recorded workout.
type Workout struct {
	Date        string
	Type        string
	DurationMin int
	Calories    int
	AvgBPM      int
}

// CaloriesDay is one day of energy expenditure.
type CaloriesDay struct {
	Date   string
	Active int
	Basal  int
}

// DataSource is the read-only health-data backend the tools query. Callers
// plug in a wearable API client, a warehouse query layer, or the in-memory
// demo source.
type DataSource interface {
	HeartRate(ctx context.Context, userID string, days int) ([]HeartRateSample, error)
	Steps(ctx context.Context, userID string, days int) ([]StepsDay, error)
	Sleep(ctx context.Context, userID string, days int) ([]SleepNight, error)
	Workouts(ctx context.Context, userID string, days int) ([]Workout, error)
	Calories(ctx context.Context, userID string, days int) ([]CaloriesDay, error)
}

const defaultDays = 7

// HealthTools builds the tool set for one user against a data source.
func HealthTools(userID string, src DataSource) []core.Tool {
	return []core.Tool{
		heartRateTool(userID, src),
		stepsTool(userID, src),
		sleepTool(userID, src),
		workoutsTool(userID, src),
		caloriesTool(userID, src),
	}
}

func daysArg(args map[string]any) int {
	v, ok := args["days"]
	if !ok {
		return defaultDays
	}
	switch n := v.(type) {
	case float64:
		if n >= 1 {
			return int(n)
		}
	case int:
		if n >= 1 {
			return n
		}
	}
	return defaultDays
}

func stringArg(args map[string]any, key string) string {
	if s, ok := args[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func boolArg(args map[string]any, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

func floatArg(args map[string]any, key string) (float64, bool) {
	switch n := args[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// stringListArg reads a decoded JSON array of strings, lowercased. Non-string
// elements are skipped.
func stringListArg(args map[string]any, key string) []string {
	items, ok := args[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

func heartRateTool(userID string, src DataSource) core.Tool {
	return core.NewFuncTool(core.ToolDefinition{
		ToolName:        "get_heart_rate",
		ToolDescription: "Get the user's daily resting, average, and max heart rate in bpm over recent days.",
		Schema: ObjectSchema(map[string]any{
			"days": IntegerProperty("Number of recent days to fetch (default 7)."),
			"date": StringProperty("Restrict to a single day, YYYY-MM-DD."),
		}),
	}, func(ctx context.Context, args map[string]any) (string, error) {
		samples, err := src.HeartRate(ctx, userID, daysArg(args))
		if err != nil {
			return "", err
		}
		if date := stringArg(args, "date"); date != "" {
			kept := samples[:0]
			for _, s := range samples {
				if s.Date == date {
					kept = append(kept, s)
				}
			}
			samples = kept
		}
		if len(samples) == 0 {
			return "No heart rate data recorded for this period.", nil
		}
		var b strings.Builder
		for _, s := range samples {
			fmt.Fprintf(&b, "%s: resting %d bpm, average %d bpm, max %d bpm\n",
				s.Date, s.RestingBPM, s.AvgBPM, s.MaxBPM)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	})
}

func stepsTool(userID string, src DataSource) core.Tool {
	return core.NewFuncTool(core.ToolDefinition{
		ToolName:        "get_steps",
		ToolDescription: "Get the user's daily step count and distance over recent days.",
		Schema: ObjectSchema(map[string]any{
			"days":      IntegerProperty("Number of recent days to fetch (default 7)."),
			"min_steps": NumberProperty("Only include days with at least this many steps."),
		}),
	}, func(ctx context.Context, args map[string]any) (string, error) {
		days, err := src.Steps(ctx, userID, daysArg(args))
		if err != nil {
			return "", err
		}
		if min, ok := floatArg(args, "min_steps"); ok {
			kept := days[:0]
			for _, d := range days {
				if float64(d.Steps) >= min {
					kept = append(kept, d)
				}
			}
			days = kept
		}
		if len(days) == 0 {
			return "No step data recorded for this period.", nil
		}
		total := 0
		var b strings.Builder
		for _, d := range days {
			total += d.Steps
			fmt.Fprintf(&b, "%s: %d steps, %.1f km\n", d.Date, d.Steps, d.DistanceKm)
		}
		fmt.Fprintf(&b, "Total: %d steps over %d days", total, len(days))
		return b.String(), nil
	})
}

func sleepTool(userID string, src DataSource) core.Tool {
	return core.NewFuncTool(core.ToolDefinition{
		ToolName:        "get_sleep",
		ToolDescription: "Get the user's nightly sleep duration with deep and REM breakdown over recent days.",
		Schema: ObjectSchema(map[string]any{
			"days":           IntegerProperty("Number of recent nights to fetch (default 7)."),
			"include_stages": BooleanProperty("Include the deep and REM breakdown (default true)."),
		}),
	}, func(ctx context.Context, args map[string]any) (string, error) {
		nights, err := src.Sleep(ctx, userID, daysArg(args))
		if err != nil {
			return "", err
		}
		if len(nights) == 0 {
			return "No sleep data recorded for this period.", nil
		}
		stages := boolArg(args, "include_stages", true)
		var b strings.Builder
		for _, n := range nights {
			if stages {
				fmt.Fprintf(&b, "%s: %.1f hours total, %.1f hours deep, %.1f hours REM\n",
					n.Date, n.TotalHours, n.DeepHours, n.RemHours)
			} else {
				fmt.Fprintf(&b, "%s: %.1f hours total\n", n.Date, n.TotalHours)
			}
		}
		return strings.TrimRight(b.String(), "\n"), nil
	})
}

func workoutsTool(userID string, src DataSource) core.Tool {
	return core.NewFuncTool(core.ToolDefinition{
		ToolName:        "get_workouts",
		ToolDescription: "Get the user's recorded workouts with duration, calories, and average heart rate.",
		Schema: ObjectSchema(map[string]any{
			"days": IntegerProperty("Number of recent days to search (default 7)."),
			"workout_types": ArrayProperty("Restrict to these workout types.",
				StringEnumProperty("Workout type.", "run", "cycling", "strength", "swim", "walk", "yoga")),
		}),
	}, func(ctx context.Context, args map[string]any) (string, error) {
		workouts, err := src.Workouts(ctx, userID, daysArg(args))
		if err != nil {
			return "", err
		}
		if types := stringListArg(args, "workout_types"); len(types) > 0 {
			kept := workouts[:0]
			for _, w := range workouts {
				for _, t := range types {
					if strings.ToLower(w.Type) == t {
						kept = append(kept, w)
						break
					}
				}
			}
			workouts = kept
		}
		if len(workouts) == 0 {
			return "No workouts recorded for this period.", nil
		}
		var b strings.Builder
		for _, w := range workouts {
			fmt.Fprintf(&b, "%s: %s, %d minutes, %d calories, average %d bpm\n",
				w.Date, w.Type, w.DurationMin, w.Calories, w.AvgBPM)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	})
}

func caloriesTool(userID string, src DataSource) core.Tool {
	return core.NewFuncTool(core.ToolDefinition{
		ToolName:        "get_calories",
		ToolDescription: "Get the user's daily active and basal calorie expenditure over recent days.",
		Schema: ObjectSchema(map[string]any{
			"days": IntegerProperty("Number of recent days to fetch (default 7)."),
		}),
	}, func(ctx context.Context, args map[string]any) (string, error) {
		days, err := src.Calories(ctx, userID, daysArg(args))
		if err != nil {
			return "", err
		}
		if len(days) == 0 {
			return "No calorie data recorded for this period.", nil
		}
		var b strings.Builder
		for _, d := range days {
			fmt.Fprintf(&b, "%s: %d active calories, %d basal calories\n",
				d.Date, d.Active, d.Basal)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	})
}

// DemoSource is a deterministic in-memory data source for examples and
// tests. Values vary by day offset so trends are visible but reproducible.
type DemoSource struct {
	Now time.Time
}

// NewDemoSource creates a demo source anchored at the current time.
func NewDemoSource() *DemoSource {
	return &DemoSource{Now: time.Now()}
}

func (d *DemoSource) date(daysAgo int) string {
	return d.Now.AddDate(0, 0, -daysAgo).Format("2006-01-02")
}

func (d *DemoSource) HeartRate(_ context.Context, _ string, days int) ([]HeartRateSample, error) {
	out := make([]HeartRateSample, 0, days)
	for i := days - 1; i >= 0; i-- {
		out = append(out, HeartRateSample{
			Date:       d.date(i),
			RestingBPM: 58 + i%4,
			AvgBPM:     72 + i%6,
			MaxBPM:     152 + (i*7)%20,
		})
	}
	return out, nil
}

func (d *DemoSource) Steps(_ context.Context, _ string, days int) ([]StepsDay, error) {
	out := make([]StepsDay, 0, days)
	for i := days - 1; i >= 0; i-- {
		steps := 8200 + (i*937)%4500
		out = append(out, StepsDay{
			Date:       d.date(i),
			Steps:      steps,
			DistanceKm: float64(steps) * 0.00075,
		})
	}
	return out, nil
}

func (d *DemoSource) Sleep(_ context.Context, _ string, days int) ([]SleepNight, error) {
	out := make([]SleepNight, 0, days)
	for i := days - 1; i >= 0; i-- {
		total := 6.8 + float64(i%4)*0.4
		out = append(out, SleepNight{
			Date:       d.date(i),
			TotalHours: total,
			DeepHours:  total * 0.22,
			RemHours:   total * 0.25,
		})
	}
	return out, nil
}

func (d *DemoSource) Workouts(_ context.Context, _ string, days int) ([]Workout, error) {
	types := []string{"run", "cycling", "strength"}
	var out []Workout
	for i := days - 1; i >= 0; i-- {
		if i%2 != 0 {
			continue
		}
		out = append(out, Workout{
			Date:        d.date(i),
			Type:        types[i/2%len(types)],
			DurationMin: 35 + (i*5)%25,
			Calories:    320 + (i*41)%180,
			AvgBPM:      138 + i%12,
		})
	}
	return out, nil
}

func (d *DemoSource) Calories(_ context.Context, _ string, days int) ([]CaloriesDay, error) {
	out := make([]CaloriesDay, 0, days)
	for i := days - 1; i >= 0; i-- {
		out = append(out, CaloriesDay{
			Date:   d.date(i),
			Active: 520 + (i*63)%300,
			Basal:  1610 + i%25,
		})
	}
	return out, nil
}
