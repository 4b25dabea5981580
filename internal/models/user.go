package models

import "time"

// User holds an account and its keypair. The private key is stored encrypted
// under the user's password and is never persisted in the clear.
type User struct {
	ID                  string    `db:"id" json:"id"`
	Username            string    `db:"username" json:"username"`
	Tag                 int       `db:"tag" json:"tag"`
	Email               string    `db:"email" json:"-"`
	PasswordHash        string    `db:"password_hash" json:"-"`
	PrivateKeyEncrypted string    `db:"private_key_encrypted" json:"-"`
	PublicKey           string    `db:"public_key" json:"-"`
	Description         string    `db:"description" json:"description"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Identity is the human-facing handle of a user: a username plus a numeric
// tag that disambiguates accounts sharing the same username.
type Identity struct {
	UserID   string `db:"id" json:"user_id"`
	Username string `db:"username" json:"username"`
	Tag      int    `db:"tag" json:"tag"`
}
