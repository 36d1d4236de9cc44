package models

// User is the caller identity supplied by the identity provider's token.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
