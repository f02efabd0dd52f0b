/*
Package zone contains the domain model of the collaborative editor: the Zone
(a named scene shared by all its occupants) and its child Nodes (typed,
positioned entities).

A Node belongs to exactly one Zone; deleting a Zone cascades to its Nodes.
Node type and parent are fixed at creation, only the transform
(position, angle, scale) is mutable through collaborative edits.
*/
package zone

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Node types form a closed set; TypeStart marks startpoint slots.
const (
	TypeCylinder = "cylinder"
	TypeStart    = "start"
	TypeLine     = "line"
	TypeWall     = "wall"
	TypeRobot    = "robot"
	TypeSegment  = "segment"
	TypeTable    = "table"
)

var nodeTypes = map[string]struct{}{
	TypeCylinder: {},
	TypeStart:    {},
	TypeLine:     {},
	TypeWall:     {},
	TypeRobot:    {},
	TypeSegment:  {},
	TypeTable:    {},
}

// ValidNodeType reports whether t belongs to the closed node type set.
func ValidNodeType(t string) bool {
	_, ok := nodeTypes[t]
	return ok
}

// Vector3 is a 3D position or scale component.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Stats aggregates a zone's simulation counters.
type Stats struct {
	PlayedGames int     `json:"playedGames"`
	PlayedTime  float64 `json:"playedTime"`
}

// Node is a typed, positioned entity owned by exactly one zone.
type Node struct {
	ID        string    `json:"_id"`
	Type      string    `json:"type"`
	Position  Vector3   `json:"position"`
	Angle     float64   `json:"angle"`
	Scale     Vector3   `json:"scale"`
	Parent    string    `json:"parent,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Zone is a shared scene: the unit of collaborative editing and of chat-room
// identity. SecretHash is never serialized.
type Zone struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name"`
	Private    bool      `json:"private"`
	SecretHash string    `json:"-"`
	Thumbnail  string    `json:"thumbnail,omitempty"`
	Stats      Stats     `json:"stats"`
	Nodes      []*Node   `json:"nodes"`
	CreatedBy  string    `json:"createdBy"`
	UpdatedBy  string    `json:"updatedBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HashSecret derives the stored hash for a zone access secret.
func HashSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifySecret checks a supplied secret against the zone's stored hash.
// Zones without a secret accept any input.
func (z *Zone) VerifySecret(secret string) bool {
	if z.SecretHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(z.SecretHash), []byte(secret)) == nil
}

// NodeByID returns the child node with the given id, or nil.
func (z *Zone) NodeByID(id string) *Node {
	if id == "" {
		return nil
	}
	for _, n := range z.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// StartNodes returns the zone's startpoint nodes in document order.
func (z *Zone) StartNodes() []*Node {
	var res []*Node
	for _, n := range z.Nodes {
		if n.Type == TypeStart {
			res = append(res, n)
		}
	}
	return res
}

// VectorPatch carries a partial position or scale update; only supplied axes
// overwrite the node's current value.
type VectorPatch struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	Z *float64 `json:"z,omitempty"`
}

// Apply merges the supplied axes onto v.
func (p *VectorPatch) Apply(v *Vector3) {
	if p == nil {
		return
	}
	if p.X != nil {
		v.X = *p.X
	}
	if p.Y != nil {
		v.Y = *p.Y
	}
	if p.Z != nil {
		v.Z = *p.Z
	}
}

// MinifiedNode is the strict projection broadcast for node edits: id,
// transform and the last editor, nothing else.
type MinifiedNode struct {
	ID        string  `json:"_id"`
	Position  Vector3 `json:"position"`
	Angle     float64 `json:"angle"`
	Scale     Vector3 `json:"scale"`
	UpdatedBy string  `json:"updatedBy"`
}

// Minify returns the strict projection of the node.
func (n *Node) Minify() MinifiedNode {
	return MinifiedNode{
		ID:        n.ID,
		Position:  n.Position,
		Angle:     n.Angle,
		Scale:     n.Scale,
		UpdatedBy: n.UpdatedBy,
	}
}

// CreatedNode is the soft projection broadcast for node creations. LocalID
// echoes the caller's optimistic client-side id and is only set on the ack
// sent back to the creator.
type CreatedNode struct {
	ID        string    `json:"_id"`
	Type      string    `json:"type"`
	Position  Vector3   `json:"position"`
	Angle     float64   `json:"angle"`
	Scale     Vector3   `json:"scale"`
	Parent    string    `json:"parent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy string    `json:"updatedBy"`
	LocalID   string    `json:"localId,omitempty"`
}

// MinifySoft returns the soft projection of the node.
func (n *Node) MinifySoft() CreatedNode {
	return CreatedNode{
		ID:        n.ID,
		Type:      n.Type,
		Position:  n.Position,
		Angle:     n.Angle,
		Scale:     n.Scale,
		Parent:    n.Parent,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		CreatedBy: n.CreatedBy,
		UpdatedBy: n.UpdatedBy,
	}
}
