package macro

import "github.com/echopolis/market-engine/internal/model"

// phaseTilt holds the stock, bond and real-estate multipliers of each phase.
// Every column averages exactly 1.0 over a full cycle so that no asset class
// compounds away from its principal across many ticks.
var phaseTilt = map[model.Phase][3]float64{
	model.PhaseExpansion:   {1.02, 0.99, 1.01},
	model.PhasePeak:        {1.00, 0.98, 1.02},
	model.PhaseContraction: {0.97, 1.02, 0.98},
	model.PhaseTrough:      {1.01, 1.01, 0.99},
}

// AssetImpact returns the multipliers for the current state. Cash loses a
// month of inflation.
func (e *Economy) AssetImpact() model.AssetImpact {
	return ImpactOf(e.state)
}

// ImpactOf computes the asset impact of an arbitrary macro snapshot.
func ImpactOf(s model.MacroSnapshot) model.AssetImpact {
	tilt, ok := phaseTilt[s.Phase]
	if !ok {
		tilt = [3]float64{1, 1, 1}
	}
	return model.AssetImpact{
		Cash:       1 - s.Inflation/1200,
		Stock:      tilt[0],
		Bond:       tilt[1],
		RealEstate: tilt[2],
	}
}
