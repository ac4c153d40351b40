package formula

import (
	"math"

	"brewcore/internal/engine"
)

// headPressure is the assumed absolute head pressure during fermentation, bar.
const headPressure = 1.0123

// dissolvedCO2 is the residual CO2 in g/l after fermenting at celsius. The
// quadratic fit is in Fahrenheit and yields volumes; one volume is ~2 g/l.
func dissolvedCO2(celsius float64) float64 {
	f := fahrenheit(celsius)
	return 2 * (3.0378 - 0.050062*f + 0.00026555*f*f)
}

// dissolvedCO2Alt solves the carbonation table equation for the same
// quantity.
func dissolvedCO2Alt(celsius float64) float64 {
	return (headPressure + 1.013) * math.Exp(-10.73797+2617.25/(celsius+273.15)) * 10
}

// primingSugar is the table sugar in g needed to lift litres of beer from
// dissolved to target g/l CO2; fermenting sugar releases half its mass.
func primingSugar(litres, target, dissolved float64) float64 {
	return litres / 0.5 * (target - dissolved)
}

func carbonationDefinitions() []definition {
	return []definition{
		field(TypeRecipe, "dissolvedCO2", engine.Deps("primaryFermentationTemp"), func(in engine.Inputs) (float64, error) {
			return dissolvedCO2(in.Num("primaryFermentationTemp")), nil
		}),
		field(TypeRecipe, "dissolvedCO2Alt", engine.Deps("primaryFermentationTemp"), func(in engine.Inputs) (float64, error) {
			return dissolvedCO2Alt(in.Num("primaryFermentationTemp")), nil
		}),
		field(TypeRecipe, "requiredTableSugarMin", engine.Deps("finalVolume", "dissolvedCO2", "beer.beerType.primingCo2Min"), func(in engine.Inputs) (float64, error) {
			return primingSugar(in.Num("finalVolume"), in.Num("beer.beerType.primingCo2Min"), in.Num("dissolvedCO2")), nil
		}),
		field(TypeRecipe, "requiredTableSugarMax", engine.Deps("finalVolume", "dissolvedCO2", "beer.beerType.primingCo2Max"), func(in engine.Inputs) (float64, error) {
			return primingSugar(in.Num("finalVolume"), in.Num("beer.beerType.primingCo2Max"), in.Num("dissolvedCO2")), nil
		}),
	}
}
