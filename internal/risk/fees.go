package risk

// Fees are proportional trading costs.
type Fees struct {
	CommissionRate float64 `json:"commissionRate"`
	TaxRate        float64 `json:"taxRate"`
}

// DefaultFees is 0.015% brokerage commission and 0.23% transaction tax.
func DefaultFees() Fees {
	return Fees{CommissionRate: 0.00015, TaxRate: 0.0023}
}

func (f Fees) Commission(notional float64) float64 {
	return notional * f.CommissionRate
}

// Tax applies to the sell side only.
func (f Fees) Tax(notional float64) float64 {
	return notional * f.TaxRate
}
