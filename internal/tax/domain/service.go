package domain

// Engine computes deterministic invoice totals.
type Engine interface {
	Compute(in Input) (Totals, error)
	SupplyTypeFor(orgStateCode, clientGSTIN string) SupplyType
}
