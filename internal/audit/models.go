package audit

import "time"

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	UserID    string
	Subject   string
	Action    string
	Reason    string
	RequestID string
}

// Action names emitted by the gateway.
const (
	EventUserRegistered = "user_registered"
	EventUserLoggedIn   = "user_logged_in"
	EventUserLoggedOut  = "user_logged_out"
	EventLoginFailed    = "login_failed"
	EventOrderSubmitted = "order_submitted"
	EventOrderAccepted  = "order_accepted"
	EventOrderRejected  = "order_rejected"
)
