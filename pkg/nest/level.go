package nest

import (
	"fmt"
	"strings"
)

// ProjectLevel is an OWASP project's maturity label.
type ProjectLevel string

const (
	LevelIncubator  ProjectLevel = "incubator"
	LevelLab        ProjectLevel = "lab"
	LevelProduction ProjectLevel = "production"
	LevelFlagship   ProjectLevel = "flagship"
	LevelOther      ProjectLevel = "other"
)

// ParseProjectLevel normalizes a level string. Unknown values map to "other"
// rather than failing; historical data carries free-form levels.
func ParseProjectLevel(s string) ProjectLevel {
	switch ProjectLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelIncubator:
		return LevelIncubator
	case LevelLab:
		return LevelLab
	case LevelProduction:
		return LevelProduction
	case LevelFlagship:
		return LevelFlagship
	default:
		return LevelOther
	}
}

func (l ProjectLevel) Validate() error {
	switch l {
	case LevelIncubator, LevelLab, LevelProduction, LevelFlagship, LevelOther:
		return nil
	}
	return fmt.Errorf("invalid project level: %q", l)
}
