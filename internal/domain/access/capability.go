package access

import "sort"

// Capability names one permitted action. Every authorization decision in the
// core is a capability check; nothing compares role strings directly.
type Capability string

const (
	CapReadDocuments         Capability = "read_documents"
	CapCreateDocument        Capability = "create_document"
	CapEditDocument          Capability = "edit_document"
	CapApproveRiskAssessment Capability = "approve_risk_assessment"
	CapReviewProcedure       Capability = "review_procedure"
	CapScheduleTraining      Capability = "schedule_training"
	CapEvaluateTraining      Capability = "evaluate_training"
	CapAdminTier             Capability = "admin_tier"
	CapManageExam            Capability = "manage_exam"
	CapViewClinical          Capability = "view_clinical"
	CapEditClinical          Capability = "edit_clinical"
	CapManageFollowUp        Capability = "manage_follow_up"
	CapSign                  Capability = "sign"
	CapManageAccounts        Capability = "manage_accounts"
	CapManageSystemAccounts  Capability = "manage_system_accounts"
)

var roleCapabilities = map[Role][]Capability{
	RoleSuperAdmin: {
		CapReadDocuments, CapCreateDocument, CapEditDocument, CapApproveRiskAssessment,
		CapReviewProcedure, CapScheduleTraining, CapEvaluateTraining, CapAdminTier,
		CapManageExam, CapSign, CapManageAccounts, CapManageSystemAccounts,
	},
	RoleCompanyAdmin: {
		CapReadDocuments, CapCreateDocument, CapEditDocument, CapReviewProcedure,
		CapScheduleTraining, CapEvaluateTraining, CapAdminTier, CapManageExam, CapSign,
		CapManageAccounts,
	},
	RoleSafetyEngineer: {
		CapReadDocuments, CapCreateDocument, CapEditDocument, CapApproveRiskAssessment,
		CapReviewProcedure, CapScheduleTraining, CapEvaluateTraining, CapManageExam, CapSign,
	},
	RoleMedicalDoctor: {
		CapReadDocuments, CapManageExam, CapViewClinical, CapEditClinical, CapManageFollowUp, CapSign,
	},
	RoleMedicalCenter: {
		CapReadDocuments, CapManageExam, CapViewClinical, CapEditClinical, CapManageFollowUp, CapSign,
	},
	RoleSupervisor: {
		CapReadDocuments, CapCreateDocument, CapEditDocument, CapSign,
	},
	RoleTrainer: {
		CapReadDocuments, CapEvaluateTraining, CapSign,
	},
	RoleWorker: {
		CapReadDocuments,
	},
}

// CapabilitySet is the union of capabilities granted by a role set.
type CapabilitySet map[Capability]bool

// Derive computes the capability set of roles.
func Derive(roles Roles) CapabilitySet {
	set := CapabilitySet{}
	for _, r := range roles {
		for _, c := range roleCapabilities[r] {
			set[c] = true
		}
	}
	return set
}

func (s CapabilitySet) Has(c Capability) bool { return s[c] }

// List returns the capabilities in sorted order.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
