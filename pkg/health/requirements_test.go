package health

import (
	"testing"

	"github.com/owasp/nest-search/pkg/nest"
)

func TestDefaultRequirements(t *testing.T) {
	levels := []nest.ProjectLevel{
		nest.LevelIncubator,
		nest.LevelLab,
		nest.LevelProduction,
		nest.LevelFlagship,
		nest.LevelOther,
	}
	for _, level := range levels {
		req := DefaultRequirements(level)
		if req.Level != level {
			t.Errorf("DefaultRequirements(%s).Level = %s", level, req.Level)
		}
	}

	// Activity minimums tighten as maturity grows.
	if DefaultRequirements(nest.LevelFlagship).StarsCount <= DefaultRequirements(nest.LevelLab).StarsCount {
		t.Error("flagship stars requirement should exceed lab")
	}
	// Staleness maximums shrink as maturity grows.
	if DefaultRequirements(nest.LevelFlagship).LastCommitDays >= DefaultRequirements(nest.LevelIncubator).LastCommitDays {
		t.Error("flagship last-commit budget should be tighter than incubator")
	}

	if got := DefaultRequirements(nest.ProjectLevel("banana")); got.Level != nest.LevelOther {
		t.Errorf("unknown level should fall back to other, got %s", got.Level)
	}
}
