package constraints

import (
	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

// Registry stores the known constraint declarations and resolves an active set
// from a configuration document.
type Registry struct {
	declarations map[string]models.ConstraintDeclaration
	order        []string
	logger       *zap.Logger
}

// NewRegistry builds a registry seeded with the core declarations.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		declarations: make(map[string]models.ConstraintDeclaration),
		logger:       logger,
	}
	for _, decl := range coreDeclarations() {
		r.declarations[decl.Code] = decl
		r.order = append(r.order, decl.Code)
	}
	return r
}

// Declarations returns all known declarations in registration order.
func (r *Registry) Declarations() []models.ConstraintDeclaration {
	out := make([]models.ConstraintDeclaration, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.declarations[code])
	}
	return out
}

// Declaration returns the declaration for a code.
func (r *Registry) Declaration(code string) (models.ConstraintDeclaration, bool) {
	decl, ok := r.declarations[code]
	return decl, ok
}

// Resolve turns a configuration into the active constraint set. Unknown codes are
// logged and ignored; missing weights and parameters fall back to declared defaults.
// Rules for flexible-only constraints are dropped in fixed mode. When the
// configuration has no rules at all, every hard declaration activates with defaults.
func (r *Registry) Resolve(cfg dto.ConstraintConfig, mode models.SlotMode) []models.ActiveConstraint {
	var active []models.ActiveConstraint

	if len(cfg.Rules) == 0 {
		for _, code := range r.order {
			decl := r.declarations[code]
			if decl.Type != models.ConstraintHard {
				continue
			}
			if decl.FlexibleOnly && mode != models.SlotModeFlexible {
				continue
			}
			active = append(active, models.ActiveConstraint{
				Declaration: decl,
				Weight:      decl.DefaultWeight,
				Parameters:  cloneParams(decl.ParameterDefaults),
			})
		}
		return active
	}

	for _, rule := range cfg.Rules {
		decl, ok := r.declarations[rule.Code]
		if !ok {
			r.logger.Warn("ignoring unknown constraint code", zap.String("code", rule.Code))
			continue
		}
		if !rule.Enabled {
			continue
		}
		if decl.FlexibleOnly && mode != models.SlotModeFlexible {
			r.logger.Warn("constraint only applies in flexible-slot mode, skipping",
				zap.String("code", rule.Code))
			continue
		}
		if rule.Type != "" {
			decl.Type = models.ConstraintType(rule.Type)
		}
		weight := decl.DefaultWeight
		if rule.Weight != nil {
			weight = *rule.Weight
		}
		params := cloneParams(decl.ParameterDefaults)
		for key, value := range rule.Parameters {
			if _, known := decl.ParameterDefaults[key]; !known {
				r.logger.Warn("ignoring unknown constraint parameter",
					zap.String("code", rule.Code), zap.String("parameter", key))
				continue
			}
			params[key] = value
		}
		active = append(active, models.ActiveConstraint{
			Declaration: decl,
			Weight:      weight,
			Parameters:  params,
		})
	}
	return active
}

func cloneParams(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func coreDeclarations() []models.ConstraintDeclaration {
	return []models.ConstraintDeclaration{
		{
			Code:     models.CodeUnifiedStudentConflict,
			Name:     "Unified student conflict",
			Type:     models.ConstraintHard,
			Category: "student",
		},
		{
			Code:     models.CodeRoomCapacityHard,
			Name:     "Room capacity",
			Type:     models.ConstraintHard,
			Category: "room",
		},
		{
			Code:         models.CodeRoomSequentialUse,
			Name:         "Room sequential use",
			Type:         models.ConstraintHard,
			Category:     "room",
			FlexibleOnly: true,
		},
		{
			Code:     models.CodePrerequisiteOrder,
			Name:     "Prerequisite order",
			Type:     models.ConstraintHard,
			Category: "exam",
		},
		{
			Code:     models.CodeLockCompliance,
			Name:     "Lock compliance",
			Type:     models.ConstraintHard,
			Category: "lock",
		},
		{
			Code:              models.CodeMaxExamsPerStudentDay,
			Name:              "Max exams per student per day",
			Type:              models.ConstraintSoft,
			Category:          "student",
			DefaultWeight:     50,
			ParameterDefaults: map[string]float64{"max_exams_per_day": 2},
		},
		{
			Code:              models.CodeMinimumGap,
			Name:              "Minimum gap between a student's exams",
			Type:              models.ConstraintSoft,
			Category:          "student",
			DefaultWeight:     100,
			ParameterDefaults: map[string]float64{"min_gap_slots": 1},
		},
		{
			Code:          models.CodeInvigilatorLoadBalance,
			Name:          "Invigilator load balance",
			Type:          models.ConstraintSoft,
			Category:      "invigilator",
			DefaultWeight: 10,
		},
		{
			Code:          models.CodeInstructorConflict,
			Name:          "Instructor invigilating own exam",
			Type:          models.ConstraintSoft,
			Category:      "invigilator",
			DefaultWeight: 30,
		},
		{
			Code:              models.CodeCarryoverConflict,
			Name:              "Carryover student conflict escalation",
			Type:              models.ConstraintSoft,
			Category:          "student",
			DefaultWeight:     40,
			ParameterDefaults: map[string]float64{"max_allowed_conflicts": 3},
		},
		{
			Code:          models.CodePreferenceSlots,
			Name:          "Preferred slot usage",
			Type:          models.ConstraintSoft,
			Category:      "exam",
			DefaultWeight: 5,
		},
		{
			Code:          models.CodeDailyWorkloadBalance,
			Name:          "Daily workload balance",
			Type:          models.ConstraintSoft,
			Category:      "exam",
			DefaultWeight: 10,
		},
		{
			Code:          models.CodeOverbookingPenalty,
			Name:          "Overbooking penalty",
			Type:          models.ConstraintSoft,
			Category:      "room",
			DefaultWeight: 20,
		},
		{
			Code:          models.CodeRoomDurationHomogeneity,
			Name:          "Room duration homogeneity",
			Type:          models.ConstraintSoft,
			Category:      "room",
			DefaultWeight: 5,
			FlexibleOnly:  true,
		},
		{
			Code:          models.CodeRoomFitPenalty,
			Name:          "Room fit penalty",
			Type:          models.ConstraintSoft,
			Category:      "room",
			DefaultWeight: 1,
		},
	}
}
