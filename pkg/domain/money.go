package domain

// Amount is a monetary value in the ledger's smallest transferable unit.
// All arithmetic on amounts is integer arithmetic; division truncates, which is
// the rounding rule for payouts (never round up).
type Amount int64

// ClampTo returns the amount limited to ceiling. A zero or negative ceiling
// means "no limit" and returns the amount unchanged.
func (a Amount) ClampTo(ceiling Amount) Amount {
	if ceiling <= 0 || a <= ceiling {
		return a
	}
	return ceiling
}
