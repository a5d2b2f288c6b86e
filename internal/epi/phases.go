package epi

import "math"

// progressingExposed is the exposed mass entering the infectious phases this
// cycle: the whole last incubation phase plus the early progressors of every
// other phase.
func progressingExposed(exposed, incubation []float64) float64 {
	last := len(exposed) - 1
	total := exposed[last]
	for i := 0; i < last; i++ {
		total += exposed[i] * incubation[i]
	}
	return total
}

// newFatalities returns the deaths per infectious phase of one segment.
// Only symptomatic individuals die; the cap uses the whole phase population.
func newFatalities(prev *State, seg int, rates *Rates, overwhelmed bool) []float64 {
	infected := prev.Infected[seg]
	asymptomatic := prev.Asymptomatic[seg]
	fatalities := make([]float64, len(infected))
	for i := range infected {
		f := rates.round(infected[i] * rates.Fatality[seg][i])
		if overwhelmed {
			f *= prev.FatalityModifier
		}
		fatalities[i] = math.Min(f, infected[i]+asymptomatic[i])
	}
	return fatalities
}

// newRecoveries returns the recoveries per infectious phase of one segment.
// Everyone left in the last phase after fatalities recovers; in earlier
// phases recoveries never exceed what fatalities left behind.
func newRecoveries(prev *State, seg int, rates *Rates, fatalities []float64) []float64 {
	infected := prev.Infected[seg]
	asymptomatic := prev.Asymptomatic[seg]
	last := len(infected) - 1

	recovered := make([]float64, len(infected))
	recovered[last] = infected[last] + asymptomatic[last] - fatalities[last]
	for i := 0; i < last; i++ {
		population := infected[i] + asymptomatic[i]
		r := rates.round(population * rates.Recovery[seg][i])
		recovered[i] = math.Min(r, population-fatalities[i])
	}
	return recovered
}
