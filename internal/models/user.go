package models

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSeller Role = "seller"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleSeller }

// Actor is whoever performs a mutation.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type ShipmentUpdateMode string

const (
	ShipmentUpdatesImmediate ShipmentUpdateMode = "immediate"
	ShipmentUpdatesDigest    ShipmentUpdateMode = "digest"
	ShipmentUpdatesOff       ShipmentUpdateMode = "off"
)

type NotificationPreferences struct {
	ShipmentUpdates  ShipmentUpdateMode `json:"shipmentUpdates"`
	Marketing        bool               `json:"marketing"`
	Account          bool               `json:"account"`
	Admin            bool               `json:"admin"`
	TrackingDelivery bool               `json:"trackingDelivery"`
	RefundReturn     bool               `json:"refundReturn"`
	SupportTicket    bool               `json:"supportTicket"`
	Customs          bool               `json:"customs"`
}

type User struct {
	ID    string                  `json:"id"`
	Email string                  `json:"email"`
	Name  string                  `json:"name"`
	Role  Role                    `json:"role"`
	Prefs NotificationPreferences `json:"preferences"`
}
