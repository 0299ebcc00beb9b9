package pk

import "strings"

// Route identifies how a dose is administered.
type Route string

// Known routes.
const (
	Injection  Route = "injection"
	Oral       Route = "oral"
	Sublingual Route = "sublingual"
	Patch      Route = "patch"
	Gel        Route = "gel"
)

// Routes returns every known route in display order.
func Routes() []Route {
	return []Route{Injection, Oral, Sublingual, Patch, Gel}
}

// ParseRoute resolves a route name, ignoring case.
func ParseRoute(s string) (Route, error) {
	for _, r := range Routes() {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return "", invalid("route", "unknown route %q", s)
}

// Valid reports whether r is a known route.
func (r Route) Valid() bool {
	switch r {
	case Injection, Oral, Sublingual, Patch, Gel:
		return true
	}
	return false
}

// Beta reports whether the route is marked experimental.
func (r Route) Beta() bool {
	return r == Gel
}

// Inert reports whether doses on this route contribute nothing to the curve.
func (r Route) Inert() bool {
	return r == Gel
}

func (r Route) String() string {
	return string(r)
}

var supported = map[Route][]Compound{
	Injection:  {Estradiol, EstradiolValerate},
	Oral:       {Estradiol, EstradiolValerate, CyproteroneAcetate},
	Sublingual: {Estradiol, EstradiolValerate},
	Patch:      {Estradiol},
	Gel:        {Estradiol},
}

// SupportedCompounds lists the compounds that can be simulated on r.
func SupportedCompounds(r Route) []Compound {
	out := make([]Compound, len(supported[r]))
	copy(out, supported[r])
	return out
}

// Supports returns nil when c can be simulated on r, or an unsupported
// configuration error otherwise.
func Supports(r Route, c Compound) error {
	if !r.Valid() {
		return invalid("route", "unknown route %q", string(r))
	}
	if !c.Valid() {
		return invalid("compound", "unknown compound %q", string(c))
	}
	for _, sc := range supported[r] {
		if sc == c {
			return nil
		}
	}
	return unsupported("compound", "%s is not supported on the %s route", c, r)
}
