package bid

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Bid is an offer by a buyer on a listing. PropertyTitle and AgentEmail are
// copied from the listing when the bid is placed; PropertyID may later point
// at a listing that no longer exists.
type Bid struct {
	ID            string     `json:"id"`
	PropertyID    string     `json:"propertyId"`
	PropertyTitle string     `json:"propertyTitle"`
	AgentEmail    string     `json:"agentEmail"`
	BuyerEmail    string     `json:"buyerEmail"`
	BuyerName     string     `json:"buyerName"`
	OfferAmount   int64      `json:"offerAmount"`
	BuyingDate    *time.Time `json:"buyingDate,omitempty"`
	Status        Status     `json:"status"`
	DecidedBy     *string    `json:"decidedBy,omitempty"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Summary is the listing side of a joined bid view.
type Summary struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Location           string `json:"location"`
	ImageURL           string `json:"imageUrl"`
	AgentName          string `json:"agentName"`
	PriceMin           int64  `json:"priceMin"`
	PriceMax           int64  `json:"priceMax"`
	VerificationStatus string `json:"verificationStatus"`
}

// View is a bid joined with its listing. Property is nil when the listing
// has been deleted.
type View struct {
	Bid
	Property *Summary `json:"property"`
}

type CreateParams struct {
	PropertyID  string
	OfferAmount int64
	BuyingDate  *time.Time
	BuyerName   string
}
