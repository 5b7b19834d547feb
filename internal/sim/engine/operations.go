package engine

import "strings"

// OpKind tags a single transformation applied to an entity. Open set: level
// catalogs may introduce toppings freely, but the verbs are fixed here.
type OpKind string

const (
	OpCookGrill     OpKind = "COOK_GRILL"
	OpCookFryer     OpKind = "COOK_FRYER"
	OpCookMicrowave OpKind = "COOK_MICROWAVE"
	OpSlice         OpKind = "SLICE"
	OpDock          OpKind = "DOCK"
	OpFlatten       OpKind = "FLATTEN"
	OpDispenseFluid OpKind = "DISPENSE_FLUID"
	OpCoatFluid     OpKind = "COAT_FLUID"
	OpTopping       OpKind = "DISPENSE_TOPPING"
)

// Operation is one entry of an entity's composition stack.
type Operation struct {
	Kind OpKind `json:"kind" yaml:"kind"`
	// Topping names the dispensed substance for the dispense/coat verbs.
	// Empty for plain verbs.
	Topping string `json:"topping,omitempty" yaml:"topping,omitempty"`
	// Topping2 is set when two fluids were dispensed in the same tick and
	// mixed. Kept sorted so mixed dispenses compare order-independently.
	Topping2 string `json:"topping2,omitempty" yaml:"topping2,omitempty"`
}

func (o Operation) String() string {
	var b strings.Builder
	b.WriteString(string(o.Kind))
	if o.Topping != "" {
		b.WriteByte('(')
		b.WriteString(o.Topping)
		if o.Topping2 != "" {
			b.WriteByte('+')
			b.WriteString(o.Topping2)
		}
		b.WriteByte(')')
	}
	return b.String()
}

// key is a total order over operations, used when a product kind compares
// its composition order-independently.
func (o Operation) key() string {
	return string(o.Kind) + "\x00" + o.Topping + "\x00" + o.Topping2
}

// MixFluids canonicalizes a two-fluid dispense: the lexically smaller
// topping goes first.
func MixFluids(a, b string) Operation {
	if b < a {
		a, b = b, a
	}
	return Operation{Kind: OpDispenseFluid, Topping: a, Topping2: b}
}
