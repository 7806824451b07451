package models

import "time"

// UserRole discriminates the three account types of the marketplace.
type UserRole string

const (
	RoleDoctor        UserRole = "doctor"
	RoleEstablishment UserRole = "establishment"
	RoleAdmin         UserRole = "admin"
)

// UserAuth carries the fields needed for authentication and token generation.
type UserAuth struct {
	ID        string
	Username  string
	Email     string
	Password  string // bcrypt hash, never the plaintext
	Role      UserRole
	CreatedAt time.Time
}

// SubscriptionStatus mirrors the payment processor's subscription lifecycle.
type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusInactive SubscriptionStatus = "inactive"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusNone     SubscriptionStatus = "none"
)

// PlanTier is the feature tier a subscription grants.
type PlanTier string

const (
	PlanEssentiel PlanTier = "essentiel"
	PlanPro       PlanTier = "pro"
	PlanPremium   PlanTier = "premium"
)

// Subscription is the last-known billing state for a user. The most recent
// row by creation time is the current one; cancellation is a status
// transition, never a row deletion.
type Subscription struct {
	ID                   string
	UserID               string
	Status               SubscriptionStatus
	PlanType             *PlanTier // nil until a paid plan is known
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	StripeCustomerID     *string
	StripeSubscriptionID *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// VacationStatus tracks a staffing post through its lifecycle.
type VacationStatus string

const (
	VacationOpen      VacationStatus = "open"
	VacationBooked    VacationStatus = "booked"
	VacationConfirmed VacationStatus = "confirmed"
	VacationCompleted VacationStatus = "completed"
	VacationCanceled  VacationStatus = "cancelled"
)

// Vacation is a temporary staffing post created by a doctor.
type Vacation struct {
	ID            string
	DoctorID      string
	Specialty     string
	Title         string
	Description   string
	Location      string
	StartDate     time.Time
	EndDate       time.Time
	HourlyRateEUR float64
	Urgent        bool
	Status        VacationStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// VacationFilter narrows a vacation search. Zero values mean "no filter".
type VacationFilter struct {
	Specialty string
	Location  string
	Query     string // free text, accent-insensitive
	From      *time.Time
	To        *time.Time
	Urgent    *bool
	Status    VacationStatus
	Limit     int
	Offset    int
}

// Booking links an establishment to a vacation it reserved.
type Booking struct {
	ID              string
	VacationID      string
	EstablishmentID string
	Message         string
	CreatedAt       time.Time
}

// Establishment is the profile of a healthcare facility account.
type Establishment struct {
	ID        string
	UserID    string
	Name      string
	Kind      string // hospital, clinic, ehpad, ...
	Address   string
	City      string
	Phone     string
	SIRET     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Conversation groups messages between a doctor and an establishment,
// usually anchored to a vacation.
type Conversation struct {
	ID         string
	VacationID *string
	DoctorID   string
	PartnerID  string
	CreatedAt  time.Time
}

// Message is one entry in a conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	CreatedAt      time.Time
}
