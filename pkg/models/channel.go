package models

import (
	"strings"
	"time"
)

// ConnectionStatus is the normalized state of a channel connection.
type ConnectionStatus string

const (
	ConnectionStatusActive   ConnectionStatus = "active"
	ConnectionStatusInactive ConnectionStatus = "inactive"
	ConnectionStatusError    ConnectionStatus = "error"
	ConnectionStatusPending  ConnectionStatus = "pending"
)

var statusSynonyms = map[string]ConnectionStatus{
	"connected":    ConnectionStatusActive,
	"disconnected": ConnectionStatusInactive,
	"failed":       ConnectionStatusError,
}

// NormalizeStatus lower-cases and trims a raw status reported by a platform and maps known
// synonyms. Unrecognized values pass through in their normalized form.
func NormalizeStatus(raw string) ConnectionStatus {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if mapped, ok := statusSynonyms[normalized]; ok {
		return mapped
	}

	return ConnectionStatus(normalized)
}

// CanReconnect reports whether a connection in this status should be offered a reconnect.
func (s ConnectionStatus) CanReconnect() bool {
	return s == ConnectionStatusInactive || s == ConnectionStatusError
}

// Mode restricts who may answer inbound messages on a channel.
type Mode string

const (
	ModeHumanOnly Mode = "human_only"
	ModeHybrid    Mode = "hybrid"
	ModeAIOnly    Mode = "ai_only"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeHumanOnly || m == ModeHybrid || m == ModeAIOnly
}

// FallbackBehavior is the action taken when user input matches no workflow branch.
type FallbackBehavior string

const (
	FallbackRouteToAI     FallbackBehavior = "route_to_ai"
	FallbackAssignToHuman FallbackBehavior = "assign_to_human"
	FallbackCreateTicket  FallbackBehavior = "create_ticket"
)

// Valid reports whether f is a known fallback behavior.
func (f FallbackBehavior) Valid() bool {
	return f == FallbackRouteToAI || f == FallbackAssignToHuman || f == FallbackCreateTicket
}

// EffectiveFor adjusts the fallback to what the channel mode allows: a human-only channel
// never hands over to AI and an AI-only channel never assigns to a human.
func (f FallbackBehavior) EffectiveFor(mode Mode) FallbackBehavior {
	switch {
	case mode == ModeHumanOnly && f == FallbackRouteToAI:
		return FallbackAssignToHuman
	case mode == ModeAIOnly && f == FallbackAssignToHuman:
		return FallbackRouteToAI
	default:
		return f
	}
}

// OutsideHoursBehavior is the action taken for messages arriving outside working hours.
type OutsideHoursBehavior string

const (
	OutsideHoursRouteToAI       OutsideHoursBehavior = "route_to_ai"
	OutsideHoursSendAwayMessage OutsideHoursBehavior = "send_away_message"
	OutsideHoursAssignToHuman   OutsideHoursBehavior = "assign_to_human"
)

// Valid reports whether b is a known outside-hours behavior.
func (b OutsideHoursBehavior) Valid() bool {
	return b == OutsideHoursRouteToAI || b == OutsideHoursSendAwayMessage || b == OutsideHoursAssignToHuman
}

// WorkingHours describes when humans staff a channel.
type WorkingHours struct {
	Timezone string       `json:"timezone" validate:"required,timezone"`
	Days     []DaySchedule `json:"days"     validate:"dive"`
}

// DaySchedule is the open interval of one weekday, in HH:MM.
type DaySchedule struct {
	Day   string `json:"day"   validate:"required,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	Open  string `json:"open"  validate:"required,datetime=15:04"`
	Close string `json:"close" validate:"required,datetime=15:04"`
}

// Routing is the routing policy of one connection.
type Routing struct {
	Mode                 Mode                 `json:"mode"`
	FallbackBehavior     FallbackBehavior     `json:"fallbackBehavior"`
	DefaultFlowID        *string              `json:"defaultFlowId"`
	WorkingHours         *WorkingHours        `json:"workingHours,omitempty"`
	OutsideHoursBehavior OutsideHoursBehavior `json:"outsideHoursBehavior,omitempty"`
}

// DefaultRouting is the routing assigned to newly registered connections.
func DefaultRouting() Routing {
	return Routing{
		Mode:             ModeHybrid,
		FallbackBehavior: FallbackAssignToHuman,
	}
}

// ConnectionKind discriminates the connection variants.
type ConnectionKind string

const (
	ConnectionKindUnipile          ConnectionKind = "unipile"
	ConnectionKindWhatsAppBusiness ConnectionKind = "whatsapp_business"
)

// RoutableConnection is the narrow view of a connection the routing core needs.
type RoutableConnection interface {
	ConnectionKey() string
	Kind() ConnectionKind
	Business() string
	Agent() *string
	CurrentStatus() ConnectionStatus
	RoutingConfig() Routing
	ApplyRouting(routing Routing)
	SetStatus(status ConnectionStatus)
}

// ConnectionBase carries the fields shared by every connection variant.
type ConnectionBase struct {
	ConnectionID string           `json:"connectionId" validate:"required"`
	BusinessID   string           `json:"businessId"   validate:"required"`
	Status       ConnectionStatus `json:"status"`
	AgentID      *string          `json:"agentId,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`

	Routing
}

func (b *ConnectionBase) ConnectionKey() string { return b.ConnectionID }
func (b *ConnectionBase) Business() string { return b.BusinessID }
func (b *ConnectionBase) Agent() *string { return b.AgentID }
func (b *ConnectionBase) CurrentStatus() ConnectionStatus { return b.Status }
func (b *ConnectionBase) RoutingConfig() Routing { return b.Routing }
func (b *ConnectionBase) ApplyRouting(routing Routing) { b.Routing = routing }
func (b *ConnectionBase) SetStatus(status ConnectionStatus) { b.Status = NormalizeStatus(string(status)) }

// UnipileConnection is an account linked through the Unipile multi-platform connector.
type UnipileConnection struct {
	ConnectionBase

	Platform    string `json:"platform"    validate:"required"`
	AccountName string `json:"accountName"`
}

func (c *UnipileConnection) Kind() ConnectionKind { return ConnectionKindUnipile }

// WhatsAppBusinessConnection is a phone number linked through the WhatsApp Business API.
type WhatsAppBusinessConnection struct {
	ConnectionBase

	PhoneNumberID      string `json:"phoneNumberId"      validate:"required"`
	DisplayPhoneNumber string `json:"displayPhoneNumber"`
	WABAID             string `json:"wabaId"`
}

func (c *WhatsAppBusinessConnection) Kind() ConnectionKind { return ConnectionKindWhatsAppBusiness }

// BusinessChannel is one of the business's channel names offered as a workflow category.
type BusinessChannel struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId" validate:"required"`
	Name       string    `json:"name"       validate:"required"`
	CreatedAt  time.Time `json:"createdAt"`
}
