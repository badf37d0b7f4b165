package models

// Identity is the locally resolved user a connection is opened for.
type Identity struct {
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
	Email         string `json:"userEmail,omitempty"`
	GoogleID      string `json:"googleId,omitempty"`
	Authenticated bool   `json:"isAuthenticated"`
}

// Valid reports whether the identity carries enough to open a connection.
func (i Identity) Valid() bool {
	return i.UserID != "" && i.UserName != ""
}

// Matches reports whether id refers to this user. Private chat events carry
// the google id instead of the user id.
func (i Identity) Matches(id string) bool {
	if id == "" {
		return false
	}
	return id == i.UserID || (i.GoogleID != "" && id == i.GoogleID)
}
