package store

import (
	"strconv"
	"time"

	"kalapa/internal/model"
)

// SeedPrefix starts the id of every built-in event. Reminders use it to
// tell practice days from user events.
const SeedPrefix = "pre-added-"

type seedEvent struct {
	title       string
	date        string
	description string
}

var seedData = []seedEvent{
	{
		title:       "Medicine Buddha Day",
		date:        "2026-01-06",
		description: "Monthly practice day on the 8th lunar day honoring the Medicine Buddha, especially for healing prayers and mantra recitation.",
	},
	{
		title:       "Protector Day",
		date:        "2026-01-07",
		description: "Monthly day on the 29th lunar day for Dharma protector practices, offerings, and removing obstacles.",
	},
	{
		title:       "Guru Rinpoche Day",
		date:        "2026-01-08",
		description: "Monthly holy day on the 10th Tibetan lunar day honoring Padmasambhava, traditionally observed with guru yoga, mantra recitation, and tsok offerings.",
	},
}

// SeedEvents returns the built-in all-day practice days at midnight in loc.
func SeedEvents(loc *time.Location) []model.Event {
	out := make([]model.Event, 0, len(seedData))
	for i, s := range seedData {
		day, err := model.ParseDateKey(s.date, loc)
		if err != nil {
			continue
		}
		out = append(out, model.Event{
			ID:          SeedPrefix + strconv.Itoa(i),
			Title:       s.title,
			Description: s.description,
			FromDate:    day,
			IsAllDay:    true,
		})
	}
	return out
}

// MergeSeeds returns seeds followed by user events. A user event with a
// seed's id replaces that seed.
func MergeSeeds(seeds, user []model.Event) []model.Event {
	stored := make(map[string]struct{}, len(user))
	for _, ev := range user {
		stored[ev.ID] = struct{}{}
	}
	out := make([]model.Event, 0, len(seeds)+len(user))
	for _, ev := range seeds {
		if _, ok := stored[ev.ID]; ok {
			continue
		}
		out = append(out, ev.Clone())
	}
	return append(out, model.CloneAll(user)...)
}
