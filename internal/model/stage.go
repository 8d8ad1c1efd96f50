package model

import (
	"github.com/rotisserie/eris"
)

// Stage marks the highest pipeline stage successfully applied to a company.
type Stage string

const (
	StageNamesFound    Stage = "names_found"
	StageWebsiteFound  Stage = "website_found"
	StageContactsFound Stage = "contacts_found"
	StageCompleted     Stage = "completed"
)

// ErrStageRegression is returned when a write would move a company to an
// earlier stage than the one it already holds.
var ErrStageRegression = eris.New("stage regression")

var stageRank = map[Stage]int{
	StageNamesFound:    1,
	StageWebsiteFound:  2,
	StageContactsFound: 3,
	StageCompleted:     4,
}

// Rank returns the ordinal of the stage, or 0 for an unknown value.
func (s Stage) Rank() int {
	return stageRank[s]
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	return s.Rank() > 0
}

func (s Stage) String() string { return string(s) }

// ParseStage converts a string to a Stage.
func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.Valid() {
		return "", eris.Errorf("model: unknown stage %q", v)
	}
	return s, nil
}

// CanTransition reports whether a company at from may be moved to to.
// Staying put and skipping forward are legal; moving backward is not.
func CanTransition(from, to Stage) bool {
	if !to.Valid() {
		return false
	}
	if from == "" {
		return true
	}
	return to.Rank() >= from.Rank()
}

// CheckTransition is CanTransition returning ErrStageRegression with context.
func CheckTransition(from, to Stage) error {
	if CanTransition(from, to) {
		return nil
	}
	if !to.Valid() {
		return eris.Errorf("model: unknown stage %q", to)
	}
	return eris.Wrapf(ErrStageRegression, "%s -> %s", from, to)
}

// InitialStage picks the stage for a freshly discovered company from the data
// it already carries.
func InitialStage(hasWebsite, hasEmail bool) Stage {
	switch {
	case hasWebsite && hasEmail:
		return StageContactsFound
	case hasWebsite:
		return StageWebsiteFound
	default:
		return StageNamesFound
	}
}

// Advance returns the highest stage justified by the data, never lower than
// current.
func Advance(current Stage, hasWebsite, hasEmail bool) Stage {
	return Max(current, InitialStage(hasWebsite, hasEmail))
}

// Max returns the later of two stages.
func Max(a, b Stage) Stage {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
