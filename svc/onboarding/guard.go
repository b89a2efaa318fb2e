package onboarding

import "strings"

type DecisionKind int

const (
	Allow DecisionKind = iota
	RedirectLogin
	RedirectDashboard
	RedirectStep
	RedirectAccessDenied
)

func (k DecisionKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectDashboard:
		return "redirect_dashboard"
	case RedirectStep:
		return "redirect_step"
	case RedirectAccessDenied:
		return "redirect_access_denied"
	}
	return "unknown"
}

// Request is everything the guard needs to know about a navigation.
type Request struct {
	Path          string
	Authenticated bool
	Step          int
	IsPro         bool
	IsAdmin       bool
}

type Decision struct {
	Kind   DecisionKind
	Target string
}

// Policy holds the path classes the guard rules refer to.
type Policy struct {
	// BypassPrefixes are matched as raw prefixes and skip every other rule.
	BypassPrefixes []string
	PublicPaths    []string
	AuthEntryPaths []string
}

func DefaultPolicy() Policy {
	return Policy{
		BypassPrefixes: []string{"/api/webhook/", "/health", "/static/"},
		PublicPaths:    []string{"/", "/public", PathAccessDenied},
		AuthEntryPaths: []string{PathLogin, "/auth/signup", "/login"},
	}
}

// Authorize decides what happens to a navigation. Rules are evaluated in
// order and the first match wins.
func (p Policy) Authorize(req Request) Decision {
	path := req.Path
	if path == "" {
		path = "/"
	}

	if p.bypassed(path) {
		return Decision{Kind: Allow}
	}

	if !req.Authenticated {
		if p.isPublic(path) || matchesAny(path, p.AuthEntryPaths) {
			return Decision{Kind: Allow}
		}
		return Decision{Kind: RedirectLogin, Target: PathLogin}
	}

	if matchesAny(path, p.AuthEntryPaths) {
		return Decision{Kind: RedirectDashboard, Target: PathDashboard}
	}

	if path == PathSuccess {
		return Decision{Kind: Allow}
	}

	step := req.Step
	if step <= StepChooseRole {
		if path == PathChoice || path == PathJoinAgency || path == PathAccessDenied || p.isPublic(path) {
			return Decision{Kind: Allow}
		}
		return Decision{Kind: RedirectStep, Target: PathChoice}
	}

	inFlow := step < StepComplete
	if inFlow && under(path, PathDashboard) && !under(path, PathOnboarding) {
		if !req.IsPro && !req.IsAdmin {
			return Decision{Kind: RedirectAccessDenied, Target: PathAccessDenied}
		}
		return Decision{Kind: RedirectStep, Target: PathFor(step)}
	}

	if !inFlow && under(path, PathOnboarding) {
		return Decision{Kind: RedirectDashboard, Target: PathDashboard}
	}

	if path == PathChoice || path == PathJoinAgency {
		if inFlow {
			return Decision{Kind: RedirectStep, Target: PathFor(step)}
		}
		return Decision{Kind: RedirectDashboard, Target: PathDashboard}
	}

	return Decision{Kind: Allow}
}

// isPublic treats "/" as an exact match and every other entry as a subtree.
func (p Policy) isPublic(path string) bool {
	for _, pub := range p.PublicPaths {
		if pub == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if under(path, pub) {
			return true
		}
	}
	return false
}

func matchesAny(path string, paths []string) bool {
	for _, candidate := range paths {
		if path == candidate {
			return true
		}
	}
	return false
}

func under(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}
