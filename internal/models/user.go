package models

// User is an account holder. Password holds the bcrypt hash and is never
// serialized.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}
