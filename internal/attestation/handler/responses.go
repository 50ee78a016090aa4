package handler

import (
	"skyseal/internal/attestation"
	"skyseal/internal/attestation/policy"
)

// IssueResponse is the HTTP response for a successful issuance.
type IssueResponse struct {
	Envelope *attestation.Envelope `json:"envelope"`
}

// FromEnvelope wraps an issued envelope for transport.
func FromEnvelope(env *attestation.Envelope) *IssueResponse {
	return &IssueResponse{Envelope: env}
}

// RefusalResponse is the HTTP response for an evidentiary refusal to issue.
type RefusalResponse struct {
	Refused bool           `json:"refused"`
	Reasons []ReasonDetail `json:"reasons"`
}

// VerdictResponse is the HTTP response for POST /attestations/verify.
type VerdictResponse struct {
	OK            bool           `json:"ok"`
	Reasons       []ReasonDetail `json:"reasons"`
	RiskScore     float64        `json:"riskScore"`
	PolicyVersion string         `json:"policyVersion"`
}

// ReasonDetail pairs a machine-readable code with its explanation.
type ReasonDetail struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
}

// FromRefusal converts an issuance refusal to an HTTP response.
func FromRefusal(refusal *attestation.IssuanceError) *RefusalResponse {
	return &RefusalResponse{
		Refused: true,
		Reasons: reasonDetails(refusal.Reasons),
	}
}

// FromVerdict converts a domain verdict to an HTTP response.
func FromVerdict(verdict *attestation.Verdict) *VerdictResponse {
	return &VerdictResponse{
		OK:            verdict.OK,
		Reasons:       reasonDetails(verdict.Reasons),
		RiskScore:     verdict.RiskScore,
		PolicyVersion: verdict.PolicyVersion,
	}
}

func reasonDetails(codes []attestation.ReasonCode) []ReasonDetail {
	details := make([]ReasonDetail, len(codes))
	for i, code := range codes {
		details[i] = ReasonDetail{
			Code:        string(code),
			Explanation: policy.Describe(code),
		}
	}
	return details
}
