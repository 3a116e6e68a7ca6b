package model

// Battery describes a swappable battery pack while it occupies a slot or is
// held by a user mid-session.
type Battery struct {
	UID          string  `json:"uid"`
	ChargeLevel  float64 `json:"charge_level"` // percent, 0-100
	Health       float64 `json:"health"`       // percent, 0-100
	TemperatureC float64 `json:"temperature_c"`
	Voltage      float64 `json:"voltage"`
	Cycles       int     `json:"cycles"`
	OwnerUserID  string  `json:"owner_user_id,omitempty"`
}
