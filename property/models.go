package property

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// ParseOutcome accepts only the two terminal verification outcomes.
func ParseOutcome(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusVerified:
		return StatusVerified, nil
	case StatusRejected:
		return StatusRejected, nil
	}
	return "", ErrInvalidOutcome
}

type Property struct {
	ID                 string     `json:"id"`
	AgentEmail         string     `json:"agentEmail"`
	AgentName          string     `json:"agentName"`
	AgentImage         string     `json:"agentImage"`
	Title              string     `json:"title"`
	Location           string     `json:"location"`
	ImageURL           string     `json:"imageUrl"`
	PriceMin           int64      `json:"priceMin"`
	PriceMax           int64      `json:"priceMax"`
	Description        string     `json:"description"`
	VerificationStatus Status     `json:"verificationStatus"`
	IsAdvertised       bool       `json:"isAdvertised"`
	VerifiedAt         *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// InRange reports whether amount lies within the listing's price band. An
// unset band (both bounds zero) accepts any amount.
func (p Property) InRange(amount int64) bool {
	if p.PriceMin == 0 && p.PriceMax == 0 {
		return true
	}
	return amount >= p.PriceMin && amount <= p.PriceMax
}

type CreateParams struct {
	AgentName   string
	AgentImage  string
	Title       string
	Location    string
	ImageURL    string
	PriceMin    int64
	PriceMax    int64
	Description string
}

// UpdateParams carries the editable listing fields. Nil fields are left
// unchanged. Owner, verification and advertising are not editable here.
type UpdateParams struct {
	Title       *string
	Location    *string
	ImageURL    *string
	PriceMin    *int64
	PriceMax    *int64
	Description *string
}

func (u UpdateParams) empty() bool {
	return u.Title == nil && u.Location == nil && u.ImageURL == nil &&
		u.PriceMin == nil && u.PriceMax == nil && u.Description == nil
}

type ListFilter struct {
	AgentEmail string
	Status     Status
	Advertised *bool
}

type VerifyOptions struct {
	// Expected makes the update conditional on the current status.
	Expected *Status
}

type Report struct {
	ID            string    `json:"id"`
	PropertyID    string    `json:"propertyId"`
	PropertyTitle string    `json:"propertyTitle"`
	AgentEmail    string    `json:"agentEmail"`
	ReporterEmail string    `json:"reporterEmail"`
	ReporterName  string    `json:"reporterName"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ReportParams struct {
	ReporterName string
	Description  string
}
