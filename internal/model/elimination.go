package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Phase identifies one stage of the screening pipeline.
type Phase string

const (
	PhaseValidate   Phase = "validate"
	PhaseSizeFilter Phase = "size_filter"
	PhaseFederal    Phase = "federal_qualification"
	PhaseResource   Phase = "resource_area"
	PhaseFlood      Phase = "flood_risk"
	PhaseFire       Phase = "fire_hazard"
	PhaseLandUse    Phase = "land_use"
)

// PhaseOrder is the canonical execution order of elimination phases after
// validation.
var PhaseOrder = []Phase{
	PhaseSizeFilter,
	PhaseFederal,
	PhaseResource,
	PhaseFlood,
	PhaseFire,
	PhaseLandUse,
}

// ReasonCode is a closed enumeration of elimination reasons.
type ReasonCode string

const (
	ReasonBelowMinAcreage    ReasonCode = "below_min_acreage"
	ReasonNotFederalQual     ReasonCode = "not_federally_qualified"
	ReasonBelowResourceTier  ReasonCode = "below_resource_tier"
	ReasonOutsideResourceMap ReasonCode = "outside_resource_map"
	ReasonHighFloodRisk      ReasonCode = "high_flood_risk"
	ReasonHighFireSeverity   ReasonCode = "high_fire_severity"
	ReasonProhibitedLandUse  ReasonCode = "prohibited_land_use"
)

// phaseReasons maps each phase to the reason codes it is allowed to emit.
// An elimination carrying any other code is a programming defect.
var phaseReasons = map[Phase]map[ReasonCode]bool{
	PhaseSizeFilter: {
		ReasonBelowMinAcreage: true,
	},
	PhaseFederal: {
		ReasonNotFederalQual: true,
	},
	PhaseResource: {
		ReasonBelowResourceTier:  true,
		ReasonOutsideResourceMap: true,
	},
	PhaseFlood: {
		ReasonHighFloodRisk: true,
	},
	PhaseFire: {
		ReasonHighFireSeverity: true,
	},
	PhaseLandUse: {
		ReasonProhibitedLandUse: true,
	},
}

// ValidReason reports whether code belongs to the closed reason set for phase.
func ValidReason(phase Phase, code ReasonCode) bool {
	return phaseReasons[phase][code]
}

// EliminationRecord is an immutable fact recording why a site left the
// pipeline. A site has at most one record; the first disqualifying phase
// terminates its participation in all later phases.
type EliminationRecord struct {
	SiteID    string     `json:"site_id"`
	Phase     Phase      `json:"phase"`
	Reason    ReasonCode `json:"reason"`
	Detail    string     `json:"detail"`
	Evidence  string     `json:"evidence,omitempty"` // matched feature id, measured distance, response digest
	Timestamp time.Time  `json:"timestamp"`
}

// NewElimination builds a record, rejecting reason codes outside the phase's
// closed enumeration.
func NewElimination(siteID string, phase Phase, reason ReasonCode, detail, evidence string) (EliminationRecord, error) {
	if !ValidReason(phase, reason) {
		return EliminationRecord{}, eris.Errorf("model: reason %q not valid for phase %q", reason, phase)
	}
	return EliminationRecord{
		SiteID:    siteID,
		Phase:     phase,
		Reason:    reason,
		Detail:    detail,
		Evidence:  evidence,
		Timestamp: time.Now().UTC(),
	}, nil
}
