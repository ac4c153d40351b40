package formula

import (
	"brewcore/internal/engine"
)

// grainTemp is the assumed temperature of the malt at dough-in, °C.
const grainTemp = 20

// coldVolume corrects a hot wort volume to 20 °C; hot wort is 4% larger.
func coldVolume(warm float64) float64 { return warm * 0.96 }

// strikeWaterTemp is the infusion heat balance for a water-to-grain ratio in
// l/kg. 2.09 converts l/kg to qt/lb.
func strikeWaterTemp(ratioLPerKg, mashingTemp float64) (float64, error) {
	k, err := ratio(0.2, ratioLPerKg/2.09)
	if err != nil {
		return 0, err
	}
	return k*(mashingTemp-grainTemp) + mashingTemp, nil
}

// lauterEfficiency models a single batch sparge. Without sparging nothing is
// lost to lautering, which the caller handles before reading the volumes.
func lauterEfficiency(absorbed, strike, sparge float64) (float64, error) {
	carried, err := ratio(absorbed*sparge, strike)
	if err != nil {
		return 0, err
	}
	eff, err := ratio(sparge+carried, strike)
	if err != nil {
		return 0, err
	}
	return 100 * eff, nil
}

func mashDefinitions() []definition {
	return []definition{
		field(TypeMashEntry, "weightedExtract", engine.Deps("amount", "extractYield"), func(in engine.Inputs) (float64, error) {
			return in.Num("amount") / 100 * in.Num("extractYield") / 100, nil
		}),
		aggregate(TypeRecipe, "totalAmount", engine.Sum("mashEntries", "amount")),
		field(TypeRecipe, "unassignedMalt", engine.Deps("totalAmount"), func(in engine.Inputs) (float64, error) {
			return 100 - in.Num("totalAmount"), nil
		}),
		aggregate(TypeRecipe, "averageExtractYield", engine.Sum("mashEntries", "weightedExtract")),
		field(TypeRecipe, "absorbedByMalt", engine.Deps("totalMaltWeight"), func(in engine.Inputs) (float64, error) {
			return in.Num("totalMaltWeight") * 0.9, nil
		}),
		field(TypeRecipe, "preBoilVolumeCold", engine.Deps("preBoilVolume"), func(in engine.Inputs) (float64, error) {
			return coldVolume(in.Num("preBoilVolume")), nil
		}),
		field(TypeRecipe, "postBoilVolumeCold", engine.Deps("postBoilVolume"), func(in engine.Inputs) (float64, error) {
			return coldVolume(in.Num("postBoilVolume")), nil
		}),
		field(TypeRecipe, "strikeWaterVolume", engine.Deps("preBoilVolumeCold", "spargeCount", "absorbedByMalt"), func(in engine.Inputs) (float64, error) {
			share, err := ratio(in.Num("preBoilVolumeCold"), in.Num("spargeCount")+1)
			if err != nil {
				return 0, err
			}
			return share + in.Num("absorbedByMalt"), nil
		}),
		field(TypeRecipe, "spargeWaterVolume", engine.Deps("preBoilVolumeCold", "spargeCount").Optional("preBoilVolumeCold"), func(in engine.Inputs) (float64, error) {
			count := in.Num("spargeCount")
			if count < 1 {
				return 0, nil
			}
			return ratio(in.Num("preBoilVolumeCold"), count+1)
		}),
		field(TypeRecipe, "waterToMaltRatio", engine.Deps("strikeWaterVolume", "totalMaltWeight"), func(in engine.Inputs) (float64, error) {
			return ratio(in.Num("strikeWaterVolume"), in.Num("totalMaltWeight"))
		}),
		field(TypeRecipe, "strikeWaterTemp", engine.Deps("waterToMaltRatio", "mashingTemp"), func(in engine.Inputs) (float64, error) {
			return strikeWaterTemp(in.Num("waterToMaltRatio"), in.Num("mashingTemp"))
		}),
		field(TypeRecipe, "lauterEfficiency",
			engine.Deps("spargeCount", "absorbedByMalt", "strikeWaterVolume", "spargeWaterVolume").
				Optional("absorbedByMalt", "strikeWaterVolume", "spargeWaterVolume"),
			func(in engine.Inputs) (float64, error) {
				if in.Num("spargeCount") == 0 {
					return 100, nil
				}
				return lauterEfficiency(in.Num("absorbedByMalt"), in.Num("strikeWaterVolume"), in.Num("spargeWaterVolume"))
			}),
	}
}
