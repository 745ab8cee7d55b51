package policy

import (
	"errors"
	"fmt"

	"github.com/maxpert/topology/encoding"
)

// WireVersion is written in front of every encoded policy.
const WireVersion uint64 = 1

// maxWireDepth bounds decoding of nested policies.
const maxWireDepth = 32

var (
	// ErrUnsupportedVersion is returned for envelopes newer than WireVersion.
	ErrUnsupportedVersion = errors.New("policy: unsupported wire version")

	// ErrUnknownKind is returned for node kinds outside One/Across/And.
	ErrUnknownKind = errors.New("policy: unknown policy kind")

	// ErrMalformed is returned for structurally invalid policy trees.
	ErrMalformed = errors.New("policy: malformed policy")
)

type wireNode struct {
	Kind      string     `msgpack:"k"`
	Count     int        `msgpack:"c,omitempty"`
	Attribute string     `msgpack:"a,omitempty"`
	Children  []wireNode `msgpack:"s,omitempty"`
}

type wireEnvelope struct {
	Version uint64   `msgpack:"v"`
	Root    wireNode `msgpack:"p"`
}

func (One) toWire() wireNode {
	return wireNode{Kind: "One"}
}

func (p Across) toWire() wireNode {
	return wireNode{
		Kind:      "Across",
		Count:     p.Count,
		Attribute: p.Attribute,
		Children:  []wireNode{p.Embedded.toWire()},
	}
}

func (p And) toWire() wireNode {
	children := make([]wireNode, 0, len(p.Policies))
	for _, sub := range p.Policies {
		children = append(children, sub.toWire())
	}
	return wireNode{Kind: "And", Children: children}
}

// Encode serializes p with a version header.
func Encode(p Policy) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil policy", ErrMalformed)
	}
	return encoding.Marshal(wireEnvelope{Version: WireVersion, Root: p.toWire()})
}

// MustEncode is Encode for statically known policies.
func MustEncode(p Policy) []byte {
	data, err := Encode(p)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode parses a versioned policy.
func Decode(data []byte) (Policy, error) {
	var env wireEnvelope
	if err := encoding.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Version == 0 || env.Version > WireVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	return fromWire(env.Root, 1)
}

func fromWire(n wireNode, depth int) (Policy, error) {
	if depth > maxWireDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, maxWireDepth)
	}

	switch n.Kind {
	case "One":
		if len(n.Children) != 0 {
			return nil, fmt.Errorf("%w: One has children", ErrMalformed)
		}
		return One{}, nil

	case "Across":
		if len(n.Children) != 1 {
			return nil, fmt.Errorf("%w: Across needs exactly one embedded policy", ErrMalformed)
		}
		if n.Attribute == "" {
			return nil, fmt.Errorf("%w: Across without attribute", ErrMalformed)
		}
		embedded, err := fromWire(n.Children[0], depth+1)
		if err != nil {
			return nil, err
		}
		return NewAcross(n.Count, n.Attribute, embedded), nil

	case "And":
		if len(n.Children) == 0 {
			return nil, fmt.Errorf("%w: And without sub-policies", ErrMalformed)
		}
		policies := make([]Policy, 0, len(n.Children))
		for _, child := range n.Children {
			sub, err := fromWire(child, depth+1)
			if err != nil {
				return nil, err
			}
			policies = append(policies, sub)
		}
		return NewAnd(policies...), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
}
