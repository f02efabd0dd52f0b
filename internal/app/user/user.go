/*
Package user contains core data structures related to user identity.

It defines the durable representation of a user account (the User struct) and
the lightweight Ref projection exchanged over the websocket protocol.
*/
package user

import "time"

// Stats aggregates a user's simulation counters.
type Stats struct {
	// PlayedGames counts completed simulations.
	PlayedGames int `json:"playedGames"`

	// PlayedTime accumulates total simulation time in seconds.
	PlayedTime float64 `json:"playedTime"`
}

// User represents a registered account. The password hash is never serialized.
type User struct {
	ID        string    `json:"_id"`
	Username  string    `json:"username"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Friends   []string  `json:"friends"`
	Stats     Stats     `json:"stats"`
	Hash      string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Ref is the minimal identity attached to live protocol events.
type Ref struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Ref returns the protocol projection of the user.
func (u *User) Ref() Ref {
	return Ref{ID: u.ID, Username: u.Username}
}

// Profile is the public projection returned by the HTTP API.
type Profile struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Stats    Stats  `json:"stats"`
}

// Profile returns the public projection of the user.
func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Username: u.Username, Name: u.Name, Stats: u.Stats}
}
