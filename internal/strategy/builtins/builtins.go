package builtins

import "marlin/internal/strategy"

// DefaultRegistry returns a Registry with every built-in strategy registered.
func DefaultRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register(NewSMACross())
	r.Register(NewConsensus())
	r.Register(NewEMARSI())
	return r
}
