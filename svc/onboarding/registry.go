package onboarding

import "strings"

const (
	StepChooseRole = 0
	StepProfile    = 1
	StepAgency     = 2
	StepShowcase   = 3
	StepPlan       = 4
	StepComplete   = 5
)

const (
	PathChoice       = "/onboarding/choice"
	PathJoinAgency   = "/auth/join-agency"
	PathDashboard    = "/dashboard"
	PathOnboarding   = "/dashboard/onboarding"
	PathSuccess      = "/dashboard/onboarding/success"
	PathAccessDenied = "/access-denied"
	PathLogin        = "/auth/login"
)

// StepDef describes one form step of the flow.
type StepDef struct {
	Step     int
	ID       string
	Title    string
	Required []string
	Path     string
}

var registry = []StepDef{
	{Step: StepProfile, ID: "profile", Title: "Profil", Required: []string{"first_name", "last_name"}, Path: PathOnboarding + "/profile"},
	{Step: StepAgency, ID: "agency", Title: "Agence", Required: []string{"name", "type", "siret"}, Path: PathOnboarding + "/agency"},
	{Step: StepShowcase, ID: "showcase", Title: "Vitrine", Required: []string{"description", "logo"}, Path: PathOnboarding + "/showcase"},
	{Step: StepPlan, ID: "plan", Title: "Abonnement", Required: []string{"plan_id"}, Path: PathOnboarding + "/plan"},
}

// Steps returns a copy of the ordered registry.
func Steps() []StepDef {
	out := make([]StepDef, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a step by its identifier.
func Lookup(id string) (StepDef, bool) {
	for _, s := range registry {
		if s.ID == id {
			return s, true
		}
	}
	return StepDef{}, false
}

// PathFor is the page a user on step should see.
func PathFor(step int) string {
	switch {
	case step <= StepChooseRole:
		return PathChoice
	case step >= StepComplete:
		return PathDashboard
	}
	for _, s := range registry {
		if s.Step == step {
			return s.Path
		}
	}
	return PathDashboard
}

// NextPath is where a user goes after saving the given step.
func NextPath(step int) string {
	return PathFor(step + 1)
}

type TrackerState string

const (
	TrackerDone     TrackerState = "done"
	TrackerCurrent  TrackerState = "current"
	TrackerUpcoming TrackerState = "upcoming"
)

type TrackerItem struct {
	StepDef
	State TrackerState
	// Href is empty for steps the user cannot reach yet.
	Href string
}

// Tracker renders progress for a user on step while viewing the page at path.
func Tracker(step int, path string) []TrackerItem {
	items := make([]TrackerItem, 0, len(registry))
	for _, s := range registry {
		item := TrackerItem{StepDef: s, State: TrackerUpcoming}
		switch {
		case strings.HasPrefix(path, s.Path):
			item.State = TrackerCurrent
		case s.Step < step:
			item.State = TrackerDone
		}
		if s.Step <= step {
			item.Href = s.Path
		}
		items = append(items, item)
	}
	return items
}
