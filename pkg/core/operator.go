// pkg/core/operator.go
package core

import "fmt"

// Operator is the train operating company of a route.
type Operator uint8

const (
	OperatorConnect Operator = iota
	OperatorMetro
	OperatorWaterline
	OperatorAirLink
	OperatorExpress
	OperatorTraining
)

var operatorNames = [...]string{
	OperatorConnect:   "Connect",
	OperatorMetro:     "Metro",
	OperatorWaterline: "Waterline",
	OperatorAirLink:   "AirLink",
	OperatorExpress:   "Express",
	OperatorTraining:  "Training",
}

// Color is an RGB display color with components in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Operators returns every known operator in declaration order.
func Operators() []Operator {
	ops := make([]Operator, len(operatorNames))
	for i := range operatorNames {
		ops[i] = Operator(i)
	}
	return ops
}

// String implements fmt.Stringer.
func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", uint8(o))
}

// Color returns the display color used for the operator's trains.
// Every operator has a case; the exhaustiveness test in operator_test.go
// fails when a new operator is added without one.
func (o Operator) Color() (Color, bool) {
	switch o {
	case OperatorConnect:
		return Color{R: 0.05, G: 0.41, B: 0.67}, true
	case OperatorMetro:
		return Color{R: 0.64, G: 0.64, B: 0.64}, true
	case OperatorWaterline:
		return Color{R: 0.05, G: 0.41, B: 0.67}, true
	case OperatorAirLink:
		return Color{R: 0.96, G: 0.8, B: 0.19}, true
	case OperatorExpress:
		return Color{R: 0.29, G: 0.59, B: 0.29}, true
	case OperatorTraining:
		return Color{R: 0.85, G: 0.52, B: 0.25}, true
	}
	return Color{}, false
}

// MarshalText encodes the operator name.
func (o Operator) MarshalText() ([]byte, error) {
	if int(o) >= len(operatorNames) {
		return nil, fmt.Errorf("unknown operator %d", uint8(o))
	}
	return []byte(operatorNames[o]), nil
}

// UnmarshalText decodes an operator name.
func (o *Operator) UnmarshalText(text []byte) error {
	for i, name := range operatorNames {
		if name == string(text) {
			*o = Operator(i)
			return nil
		}
	}
	return fmt.Errorf("unknown operator %q", text)
}
