package models

// Totals is the derived aggregate of nutrient_per_serving × quantity.
type Totals struct {
	Calories float64
	ProteinG float64
	CarbsG   float64
	FatG     float64
}

// Contribution returns what a single entry adds to the day's totals.
func (e Entry) Contribution() Totals {
	return Totals{
		Calories: float64(e.Food.Calories) * e.Quantity,
		ProteinG: e.Food.ProteinG * e.Quantity,
		CarbsG:   e.Food.CarbsG * e.Quantity,
		FatG:     e.Food.FatG * e.Quantity,
	}
}

func (t Totals) Add(o Totals) Totals {
	return Totals{
		Calories: t.Calories + o.Calories,
		ProteinG: t.ProteinG + o.ProteinG,
		CarbsG:   t.CarbsG + o.CarbsG,
		FatG:     t.FatG + o.FatG,
	}
}

// Sum recomputes totals from scratch over every entry, in category then entry
// order. It is the only way totals are produced, so they cannot drift.
func Sum(categories []Category) Totals {
	var t Totals
	for _, c := range categories {
		for _, e := range c.Entries {
			t = t.Add(e.Contribution())
		}
	}
	return t
}
