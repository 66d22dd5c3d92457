package core

// NewDefaultRulesEngine builds a rules engine with the built-in claim and product policies.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewProductStateRule())
	engine.Register(NewClaimLifecycleRule())
	engine.Register(NewSingleAcceptanceRule())
	return engine
}
