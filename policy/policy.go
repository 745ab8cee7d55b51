// Package policy models failure-domain placement policies.
//
// A Policy describes how the copies of one role are spread across failure domains. The set of
// implementations is closed (One, Across, And); callers never inspect the concrete type and
// instead compare the deterministic Info signature.
package policy

import (
	"fmt"
	"strings"
)

// Well-known locality attributes.
const (
	AttrZoneID   = "zoneid"
	AttrDcID     = "dcid"
	AttrDataHall = "data_hall"
	AttrMachine  = "machineid"
)

// Policy is a placement policy tree.
type Policy interface {
	// Name identifies the node kind ("One", "Across", "And").
	Name() string
	// Info is the canonical signature used for classification. Two policies with equal
	// Info place replicas identically.
	Info() string
	// Depth is the height of the policy tree.
	Depth() int
	// MaxResults is the number of replicas the policy selects.
	MaxResults() int
	String() string

	toWire() wireNode
}

// One selects a single replica.
type One struct{}

func (One) Name() string    { return "One" }
func (One) Info() string    { return "1" }
func (One) Depth() int      { return 1 }
func (One) MaxResults() int { return 1 }
func (p One) String() string {
	return p.Info()
}

// Across selects Count distinct values of Attribute and applies Embedded within each.
type Across struct {
	Count     int
	Attribute string
	Embedded  Policy
}

func (Across) Name() string { return "Across" }

func (p Across) Info() string {
	return fmt.Sprintf("%s^%d x %s", p.Attribute, p.Count, p.Embedded.Info())
}

func (p Across) Depth() int {
	return 1 + p.Embedded.Depth()
}

func (p Across) MaxResults() int {
	return p.Count * p.Embedded.MaxResults()
}

func (p Across) String() string {
	return p.Info()
}

// And requires every sub-policy to hold over the same replica set.
type And struct {
	Policies []Policy
}

func (And) Name() string { return "And" }

func (p And) Info() string {
	var b strings.Builder
	for i, sub := range p.Policies {
		if i > 0 {
			b.WriteString(" & ")
		}
		b.WriteString("(")
		b.WriteString(sub.Info())
		b.WriteString(")")
	}
	if len(p.Policies) == 0 {
		return ""
	}
	return "(" + b.String() + ")"
}

func (p And) Depth() int {
	depth := 0
	for _, sub := range p.Policies {
		if d := sub.Depth(); d > depth {
			depth = d
		}
	}
	return depth
}

func (p And) MaxResults() int {
	results := 0
	for _, sub := range p.Policies {
		if r := sub.MaxResults(); r > results {
			results = r
		}
	}
	return results
}

func (p And) String() string {
	return p.Info()
}

// NewAcross builds Across{count, attribute, embedded}.
func NewAcross(count int, attribute string, embedded Policy) Across {
	return Across{Count: count, Attribute: attribute, Embedded: embedded}
}

// NewAnd builds an And over policies.
func NewAnd(policies ...Policy) And {
	return And{Policies: policies}
}

// NewZoneAcross is the default policy: count copies, one per distinct zone.
func NewZoneAcross(count int) Across {
	return NewAcross(count, AttrZoneID, One{})
}
