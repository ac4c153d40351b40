package formula

import (
	"math"

	"brewcore/internal/engine"
)

// tinseth returns the IBU contribution of a hop addition: amount in grams,
// alpha acid in percent, boiled for minutes in volume litres of wort of
// gravity og.
func tinseth(og, minutes, alphaAcid, amount, volume float64) (float64, error) {
	bigness := 1.65 * math.Pow(0.000125, og-1)
	boilFactor := (1 - math.Exp(-0.04*minutes)) / 4.15
	mgPerLitre, err := ratio(alphaAcid/100*amount*1000, volume)
	if err != nil {
		return 0, err
	}
	return bigness * boilFactor * mgPerLitre, nil
}

func boilDefinitions() []definition {
	return []definition{
		field(TypeBoilEntry, "extractWeight", engine.Deps("amount", "extractYield").Default("extractYield", 0), func(in engine.Inputs) (float64, error) {
			return in.Num("amount") / 1000 * in.Num("extractYield") / 100, nil
		}),
		field(TypeBoilEntry, "IBU",
			engine.Deps("recipe.OG", "addTime", "alphaAcid", "amount", "recipe.postBoilVolume").Default("alphaAcid", 0),
			func(in engine.Inputs) (float64, error) {
				return tinseth(in.Num("recipe.OG"), in.Num("addTime"), in.Num("alphaAcid"), in.Num("amount"), in.Num("recipe.postBoilVolume"))
			}),
		field(TypeRecipe, "boilOff", engine.Deps("preBoilVolume", "postBoilVolume", "boilTime"), func(in engine.Inputs) (float64, error) {
			perMinute, err := ratio(in.Num("preBoilVolume")-in.Num("postBoilVolume"), in.Num("boilTime"))
			return perMinute * 60, err
		}),
		aggregate(TypeRecipe, "sortedBoilEntries", engine.SortBy("boilEntries", "addTime")),
		aggregate(TypeRecipe, "totalBoilExtract", engine.Sum("boilEntries", "extractWeight")),
		aggregate(TypeRecipe, "IBU", engine.Sum("boilEntries", "IBU")),
		field(TypeRecipe, "leftInKettle", engine.Deps("postBoilVolumeCold", "fermentationVolume"), func(in engine.Inputs) (float64, error) {
			return in.Num("postBoilVolumeCold") - in.Num("fermentationVolume"), nil
		}),
		field(TypeRecipe, "leftInFermentor", engine.Deps("finalVolume", "fermentationVolume"), func(in engine.Inputs) (float64, error) {
			return in.Num("fermentationVolume") - in.Num("finalVolume"), nil
		}),
	}
}
