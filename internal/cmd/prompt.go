package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/masahif/offliner/internal/config"
)

// promptConfirm asks whether the mirror should start. Aborting the form
// counts as a no.
func promptConfirm(cfg *config.MirrorConfig) (bool, error) {
	confirm := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Mirror %s?", cfg.TargetURL)).
				Description(fmt.Sprintf("Pages up to depth %d will be written below %s.", cfg.EffectiveDepth(), cfg.OutputDir)).
				Affirmative("Yes, start").
				Negative("Cancel").
				Value(&confirm),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return confirm, nil
}
