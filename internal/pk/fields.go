package pk

// FieldMode describes how a form should present a mass field.
type FieldMode string

// Field modes.
const (
	FieldHidden   FieldMode = "hidden"
	FieldEditable FieldMode = "editable"
	FieldDerived  FieldMode = "derived"
)

// FieldPolicy tells the form layer which dose quantities are meaningful for
// a route/compound pair.
type FieldPolicy struct {
	Route     Route
	Compound  Compound
	Raw       FieldMode
	E2        FieldMode
	PatchMode bool
	Inert     bool
	Beta      bool
	Supported bool
}

// Fields returns the field policy for r and c.
func Fields(r Route, c Compound) FieldPolicy {
	p := FieldPolicy{
		Route:     r,
		Compound:  c,
		Raw:       FieldHidden,
		E2:        FieldHidden,
		Inert:     r.Inert(),
		Beta:      r.Beta(),
		Supported: Supports(r, c) == nil,
	}
	if !p.Supported {
		return p
	}

	switch {
	case r == Patch:
		p.PatchMode = true
	case c == Estradiol:
		p.E2 = FieldEditable
	case c == CyproteroneAcetate:
		p.Raw = FieldEditable
	default:
		// Ester kinetics are keyed on the raw mass; the equivalent is
		// informational.
		p.Raw = FieldEditable
		p.E2 = FieldDerived
	}
	return p
}

// FieldPolicies returns the policy for every route/compound pair.
func FieldPolicies() []FieldPolicy {
	var out []FieldPolicy
	for _, r := range Routes() {
		for _, c := range Compounds() {
			out = append(out, Fields(r, c))
		}
	}
	return out
}
