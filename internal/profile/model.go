package profile

import "time"

// Consent records what the user has opted into.
type Consent struct {
	Listening     bool `json:"listening"`
	ShareLocation bool `json:"share_location"`
}

// Contact is one emergency contact. Contacts have no identity of their own;
// their order within Profile.Contacts is the notification fan-out order.
type Contact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Relation string `json:"relation,omitempty"`
	// Carrier names the contact's mobile carrier. It is only used to
	// synthesize an email-to-SMS gateway address when Email is empty.
	Carrier string `json:"carrier,omitempty"`
}

// LocationPoint is one entry in a user's location history.
type LocationPoint struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	At        time.Time `json:"ts"`
}

// Profile is a user profile with emergency-contact data. It is read at
// assessment time (for context) and again at notification time (for contact
// resolution); the two reads are independent and not assumed consistent.
type Profile struct {
	UserID          string          `json:"user_id"`
	Name            string          `json:"name"`
	Age             int             `json:"age,omitempty"`
	Phone           string          `json:"phone"`
	Email           string          `json:"email,omitempty"`
	MedicalHistory  string          `json:"medical_history,omitempty"`
	Consent         Consent         `json:"consent"`
	Contacts        []Contact       `json:"emergency_contacts"`
	LocationHistory []LocationPoint `json:"location_history,omitempty"`
}
