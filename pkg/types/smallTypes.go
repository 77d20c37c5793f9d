package types

import (
	"fmt"
	"strconv"
)

// Kind is one of the closed set of geometry graph node types.
// The numeric value is persisted in ChildPositions, RootVolume and SerialTransformers,
// so existing values must never be renumbered.
type Kind uint8

const (
	KindUnknown Kind = iota
	Element
	Material
	Shape
	LogVol
	PhysVol
	FullPhysVol
	Transform
	AlignableTransform
	NameTag
	IdentifierTag
	SerialIdentifier
	SerialDenominator
	Function
	SerialTransformer
)

// AllKinds lists every persisted kind in dependency order: a kind only references kinds
// listed before it (shapes may reference other shapes with smaller ids).
var AllKinds = []Kind{
	Element,
	Material,
	Shape,
	LogVol,
	Transform,
	AlignableTransform,
	NameTag,
	IdentifierTag,
	SerialIdentifier,
	SerialDenominator,
	Function,
	PhysVol,
	FullPhysVol,
	SerialTransformer,
}

func (k Kind) String() string {
	switch k {
	case Element:
		return "Element"
	case Material:
		return "Material"
	case Shape:
		return "Shape"
	case LogVol:
		return "LogVol"
	case PhysVol:
		return "PhysVol"
	case FullPhysVol:
		return "FullPhysVol"
	case Transform:
		return "Transform"
	case AlignableTransform:
		return "AlignableTransform"
	case NameTag:
		return "NameTag"
	case IdentifierTag:
		return "IdentifierTag"
	case SerialIdentifier:
		return "SerialIdentifier"
	case SerialDenominator:
		return "SerialDenominator"
	case Function:
		return "Function"
	case SerialTransformer:
		return "SerialTransformer"
	}
	return "Unknown"
}

// Table is the name of the backing table that holds the attribute rows of this kind.
func (k Kind) Table() string {
	switch k {
	case Element:
		return "Elements"
	case Material:
		return "Materials"
	case Shape:
		return "Shapes"
	case LogVol:
		return "LogVols"
	case PhysVol:
		return "PhysVols"
	case FullPhysVol:
		return "FullPhysVols"
	case Transform:
		return "Transforms"
	case AlignableTransform:
		return "AlignableTransforms"
	case NameTag:
		return "NameTags"
	case IdentifierTag:
		return "IdentifierTags"
	case SerialIdentifier:
		return "SerialIdentifiers"
	case SerialDenominator:
		return "SerialDenominators"
	case Function:
		return "Functions"
	case SerialTransformer:
		return "SerialTransformers"
	}
	return ""
}

func (k Kind) Valid() bool {
	return k >= Element && k <= SerialTransformer
}

// IsVolume reports whether nodes of this kind can be placed as volumes.
func (k Kind) IsVolume() bool {
	return k == PhysVol || k == FullPhysVol
}

// IsContainer reports whether nodes of this kind own an ordered child list.
func (k Kind) IsContainer() bool {
	return k.IsVolume()
}

// ParseKind accepts either the kind name ("PhysVol") or its table name ("PhysVols").
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if k.String() == s || k.Table() == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown node kind %q", s)
}

// KindFromCode converts a persisted kind code back into a Kind.
func KindFromCode(code int64) (Kind, error) {
	k := Kind(code)
	if code < 0 || code > int64(SerialTransformer) || !k.Valid() {
		return KindUnknown, fmt.Errorf("invalid node kind code %d", code)
	}
	return k, nil
}

// StoredID is the persisted identifier of a node, unique within its kind.
// Ids are assigned monotonically per kind starting at 1; 0 means "not stored".
type StoredID uint32

func (id StoredID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Ref addresses one persisted node.
type Ref struct {
	Kind Kind
	ID   StoredID
}

func (r Ref) String() string {
	return r.Kind.String() + ":" + r.ID.String()
}

func (r Ref) IsZero() bool {
	return r.ID == 0
}
