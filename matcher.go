package mt_migrator

// ConfigCustomizer adjusts runner options before the engine sees them.
type ConfigCustomizer interface {
	Customize(opts *RunnerOptions)
}

type ConfigCustomizerFunc func(opts *RunnerOptions)

func (f ConfigCustomizerFunc) Customize(opts *RunnerOptions) {
	f(opts)
}

// Selector names the unit a binding is declared for: either no unit at all or
// a specific one.
type Selector struct {
	unit      string
	qualified bool
}

// Unqualified selects nothing explicitly; such bindings apply to the default unit only.
func Unqualified() Selector {
	return Selector{}
}

func ForUnit(unit string) Selector {
	return Selector{unit: canonicalUnit(unit), qualified: true}
}

func (s Selector) Qualified() bool {
	return s.qualified
}

func (s Selector) Unit() string {
	return s.unit
}

// CustomizerBinding pairs a customizer with the selector it was declared with.
type CustomizerBinding struct {
	Customizer ConfigCustomizer
	Selector   Selector
}

// Bind declares customizer for the given selector.
func Bind(selector Selector, customizer ConfigCustomizer) CustomizerBinding {
	return CustomizerBinding{Customizer: customizer, Selector: selector}
}

// MatchCustomizers returns, in registration order, the customizers applying to unit.
// A binding qualified with unit matches; an unqualified binding matches the default unit only.
func MatchCustomizers(unit string, bindings []CustomizerBinding) []ConfigCustomizer {
	unit = canonicalUnit(unit)
	result := make([]ConfigCustomizer, 0)
	for _, binding := range bindings {
		switch {
		case binding.Selector.qualified && binding.Selector.unit == unit:
			result = append(result, binding.Customizer)
		case unit == DefaultUnit && !binding.Selector.qualified:
			result = append(result, binding.Customizer)
		}
	}
	return result
}
