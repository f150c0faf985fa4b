package domain

// LeadEvent is the inbound stream payload that starts a conversation.
type LeadEvent struct {
	ID           string       `json:"id" validate:"required"`
	DealershipID int64        `json:"dealership_id" validate:"required,gt=0"`
	Source       string       `json:"source"`
	Customer     LeadCustomer `json:"customer" validate:"required"`
	Vehicle      LeadVehicle  `json:"vehicle"`
	Comments     string       `json:"comments"`
	Metadata     LeadMetadata `json:"metadata"`
}

// LeadCustomer identifies the person behind the lead.
type LeadCustomer struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
	Email string `json:"email" validate:"omitempty,email"`
}

// LeadVehicle describes the vehicle the lead asked about.
type LeadVehicle struct {
	Model string  `json:"model"`
	Price float64 `json:"price"`
}

// LeadMetadata carries optional scoring and session signals.
type LeadMetadata struct {
	PremiumDealership bool              `json:"premium_dealership"`
	EngagementSeconds int               `json:"engagement_seconds"`
	InquiryType       string            `json:"inquiry_type"`
	CreativeMode      bool              `json:"creative_mode"`
	RequestedTurns    int               `json:"requested_turns"`
	SessionData       map[string]string `json:"session_data"`
}
