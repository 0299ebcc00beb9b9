// Package pk implements the pharmacokinetic core: dose-equivalence
// conversion, the sublingual absorption model, per-route single-dose
// kinetics and the superposition engine that turns a dosing history into a
// serum estradiol curve.
//
// Everything in this package is pure and synchronous. Times are hours
// relative to a caller-chosen reference, masses are milligrams and
// concentrations are pg/mL.
package pk

import (
	"fmt"
	"strings"
)

// Compound identifies an administered substance.
type Compound string

// Known compounds.
const (
	Estradiol          Compound = "E2"
	EstradiolValerate  Compound = "EV"
	CyproteroneAcetate Compound = "CPA"

	// Reserved esters: convertible, no kinetic parameters yet.
	EstradiolBenzoate   Compound = "EB"
	EstradiolCypionate  Compound = "EC"
	EstradiolEnanthate  Compound = "EEn"
	EstradiolUndecylate Compound = "EUn"
)

// Molar masses in g/mol.
const (
	molarMassE2  = 272.38
	molarMassEV  = 356.50
	molarMassEB  = 376.49
	molarMassEC  = 396.57
	molarMassEEn = 384.56
	molarMassEUn = 440.66
)

var molarMass = map[Compound]float64{
	Estradiol:           molarMassE2,
	EstradiolValerate:   molarMassEV,
	EstradiolBenzoate:   molarMassEB,
	EstradiolCypionate:  molarMassEC,
	EstradiolEnanthate:  molarMassEEn,
	EstradiolUndecylate: molarMassEUn,
}

var compoundNames = map[Compound]string{
	Estradiol:           "Estradiol",
	EstradiolValerate:   "Estradiol valerate",
	CyproteroneAcetate:  "Cyproterone acetate",
	EstradiolBenzoate:   "Estradiol benzoate",
	EstradiolCypionate:  "Estradiol cypionate",
	EstradiolEnanthate:  "Estradiol enanthate",
	EstradiolUndecylate: "Estradiol undecylate",
}

// Compounds returns every known compound in display order.
func Compounds() []Compound {
	return []Compound{
		Estradiol,
		EstradiolValerate,
		CyproteroneAcetate,
		EstradiolBenzoate,
		EstradiolCypionate,
		EstradiolEnanthate,
		EstradiolUndecylate,
	}
}

// ParseCompound resolves a compound code, ignoring case.
func ParseCompound(s string) (Compound, error) {
	for _, c := range Compounds() {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", invalid("compound", "unknown compound %q", s)
}

// Valid reports whether c is a known compound.
func (c Compound) Valid() bool {
	_, ok := compoundNames[c]
	return ok
}

// Name returns the human-readable compound name.
func (c Compound) Name() string {
	return compoundNames[c]
}

// Convertible reports whether c has an estradiol equivalent.
func (c Compound) Convertible() bool {
	_, ok := molarMass[c]
	return ok
}

func (c Compound) String() string {
	return string(c)
}

// PotencyFactor returns the mass ratio from c to estradiol, derived from
// molar masses. It is exactly 1 for estradiol.
func PotencyFactor(c Compound) (float64, error) {
	m, ok := molarMass[c]
	if !ok {
		if !c.Valid() {
			return 0, invalid("compound", "unknown compound %q", string(c))
		}
		return 0, &Error{
			Kind:      ErrNotConvertible,
			DoseIndex: NoDose,
			Field:     "compound",
			Message:   fmt.Sprintf("%s has no estradiol equivalent", c),
		}
	}
	return molarMassE2 / m, nil
}

// ToE2Equivalent converts an administered mass of c to estradiol mass.
func ToE2Equivalent(c Compound, rawMg float64) (float64, error) {
	f, err := PotencyFactor(c)
	if err != nil {
		return 0, err
	}
	return rawMg * f, nil
}

// FromE2Equivalent converts an estradiol mass back to a mass of c.
func FromE2Equivalent(c Compound, e2Mg float64) (float64, error) {
	f, err := PotencyFactor(c)
	if err != nil {
		return 0, err
	}
	return e2Mg / f, nil
}
