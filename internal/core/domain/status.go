package domain

import (
	"fmt"
	"strings"
)

type Status string

// Main flow, in display order.
const (
	StatusDocumentSubmitted           Status = "Document Submitted"
	StatusAdditionalDocumentsNeeded   Status = "Additional Documents Needed"
	StatusAdditionalDocumentSubmitted Status = "Additional Document Submitted"
	StatusVisaApproved                Status = "Visa Approved"
)

// StatusAdditionalDocumentsSubmitted is the legacy spelling. The upload tracker
// still writes it; display lookups normalize it to StatusAdditionalDocumentSubmitted.
const StatusAdditionalDocumentsSubmitted Status = "Additional Documents Submitted"

// Extended statuses accepted by the engine but outside the main display flow.
const (
	StatusDocumentsVerified          Status = "Documents Verified"
	StatusVisaApplicationSubmitted   Status = "Visa Application Submitted"
	StatusVisaVerificationInProgress Status = "Visa Verification In Progress"
	StatusVisaRejected               Status = "Visa Rejected"
	StatusTicketClosed               Status = "Ticket Closed"
	StatusOfferLetterSent            Status = "Offer Letter Sent"
)

const neutralColor = "gray"

type StatusInfo struct {
	Status  Status `json:"status"`
	Label   string `json:"label"`
	Color   string `json:"color"`
	Step    int    `json:"step"`
	Message string `json:"message"`
}

var mainFlow = []StatusInfo{
	{
		Status:  StatusDocumentSubmitted,
		Label:   "Submitted",
		Color:   "blue",
		Step:    1,
		Message: "Your documents have been submitted and are awaiting review.",
	},
	{
		Status:  StatusAdditionalDocumentsNeeded,
		Label:   "Documents Needed",
		Color:   "orange",
		Step:    2,
		Message: "Additional documents are required to continue processing.",
	},
	{
		Status:  StatusAdditionalDocumentSubmitted,
		Label:   "Documents Received",
		Color:   "purple",
		Step:    3,
		Message: "Your additional documents have been received and are under review.",
	},
	{
		Status:  StatusVisaApproved,
		Label:   "Approved",
		Color:   "green",
		Step:    4,
		Message: "Congratulations! Your visa has been approved.",
	},
}

var extendedStatuses = []Status{
	StatusDocumentsVerified,
	StatusVisaApplicationSubmitted,
	StatusVisaVerificationInProgress,
	StatusVisaRejected,
	StatusTicketClosed,
	StatusOfferLetterSent,
}

var legacyAliases = map[Status]Status{
	StatusAdditionalDocumentsSubmitted: StatusAdditionalDocumentSubmitted,
}

// workflowRank orders every known status along the processing pipeline. It is
// used to decide whether an application is already past the document round.
var workflowRank = map[Status]int{
	StatusDocumentSubmitted:           1,
	StatusAdditionalDocumentsNeeded:   2,
	StatusAdditionalDocumentSubmitted: 3,
	StatusDocumentsVerified:           4,
	StatusVisaApplicationSubmitted:    5,
	StatusVisaVerificationInProgress:  6,
	StatusOfferLetterSent:             7,
	StatusVisaApproved:                8,
	StatusVisaRejected:                8,
	StatusTicketClosed:                9,
}

// Catalog returns the main-flow statuses in display order.
func Catalog() []StatusInfo {
	out := make([]StatusInfo, len(mainFlow))
	copy(out, mainFlow)
	return out
}

// NormalizeStatus maps legacy aliases to their canonical display bucket.
// Unknown statuses pass through unchanged.
func NormalizeStatus(status Status) Status {
	if canonical, ok := legacyAliases[status]; ok {
		return canonical
	}
	return status
}

// ParseStatus trims raw and returns the matching known status. Anything outside
// the main flow, extended set and legacy aliases is rejected with ErrInvalidStatus.
func ParseStatus(raw string) (Status, error) {
	candidate := Status(strings.TrimSpace(raw))
	if candidate.Known() {
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// ExtendedStatuses lists the accepted statuses outside the main flow.
func ExtendedStatuses() []Status {
	out := make([]Status, len(extendedStatuses))
	copy(out, extendedStatuses)
	return out
}

func (s Status) Known() bool {
	_, ok := workflowRank[NormalizeStatus(s)]
	return ok
}

func (s Status) String() string {
	return string(s)
}

// Step returns the 1-based main-flow step, or 0 for statuses outside it.
func (s Status) Step() int {
	if info, ok := lookupMainFlow(s); ok {
		return info.Step
	}
	return 0
}

// AtOrPast reports whether s is at or beyond other in the processing pipeline.
// Unknown statuses are never at or past anything.
func (s Status) AtOrPast(other Status) bool {
	rank, ok := workflowRank[NormalizeStatus(s)]
	if !ok {
		return false
	}
	return rank >= workflowRank[NormalizeStatus(other)]
}

// Variants returns every stored spelling that SameAs s, canonical first.
func (s Status) Variants() []Status {
	canonical := NormalizeStatus(s)
	out := []Status{canonical}
	for legacy, target := range legacyAliases {
		if target == canonical {
			out = append(out, legacy)
		}
	}
	return out
}

// SameAs compares statuses after legacy normalization.
func (s Status) SameAs(other Status) bool {
	return NormalizeStatus(s) == NormalizeStatus(other)
}

func StatusColor(status Status) string {
	if info, ok := lookupMainFlow(status); ok {
		return info.Color
	}
	return neutralColor
}

func StatusMessage(status Status) string {
	if info, ok := lookupMainFlow(status); ok {
		return info.Message
	}
	return fmt.Sprintf("Status: %s", status)
}

func lookupMainFlow(status Status) (StatusInfo, bool) {
	normalized := NormalizeStatus(status)
	for _, info := range mainFlow {
		if info.Status == normalized {
			return info, true
		}
	}
	return StatusInfo{}, false
}
