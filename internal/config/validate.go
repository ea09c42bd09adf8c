package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/robfig/cron/v3"
)

// FieldError is a validation failure on one dotted config path.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid configuration: " + e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid configuration (%d errors):", len(e.Errors))
	for _, fe := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(fe.Error())
	}
	return sb.String()
}

// Validate checks the configuration and returns a ValidationError listing
// every problem, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	if cfg.Repair.MaxPasses < 0 || cfg.Repair.MaxPasses > maxRepairPasses {
		errs = append(errs, FieldError{"repair.max_passes", fmt.Sprintf("must be within 0..%d", maxRepairPasses)})
	}
	if cfg.Repair.MinPlainChars <= 0 {
		errs = append(errs, FieldError{"repair.min_plain_chars", "must be positive"})
	}
	if cfg.Gates.ContradictionRelTol <= 0 || cfg.Gates.ContradictionRelTol >= 1 {
		errs = append(errs, FieldError{"gates.contradiction_rel_tol", "must be within (0, 1)"})
	}
	if cfg.Compliance.DensityMin > cfg.Compliance.DensityMax {
		errs = append(errs, FieldError{"compliance.density_min", "must not exceed density_max"})
	}
	for i, entry := range cfg.CanaryItems {
		if !doublestar.ValidatePattern(entry) {
			errs = append(errs, FieldError{fmt.Sprintf("canary_items[%d]", i), fmt.Sprintf("invalid pattern %q", entry)})
		}
	}
	if cfg.Store.Path == "" {
		errs = append(errs, FieldError{"store.path", "is required"})
	}
	if cfg.Enrichment.MaxAttempts < 1 {
		errs = append(errs, FieldError{"enrichment.max_attempts", "must be at least 1"})
	}
	if cfg.Queue.SweepSpec != "" {
		if _, err := cron.ParseStandard(cfg.Queue.SweepSpec); err != nil {
			errs = append(errs, FieldError{"queue.sweep_spec", err.Error()})
		}
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
