package formula

import (
	"brewcore/internal/engine"
)

// realGravity applies the Balling correction of apparent attenuation.
func realGravity(og, fg float64) float64 {
	return 1 + 0.1808*(og-1) + 0.8192*(fg-1)
}

// alcoholByWeight uses the Balling formula on original and real extract.
func alcoholByWeight(ogPlato, realFGPlato float64) (float64, error) {
	return ratio(ogPlato-realFGPlato, 2.065-0.010665*ogPlato)
}

func gravityDefinitions() []definition {
	platoOf := func(sg string) engine.Formula {
		return func(in engine.Inputs) (float64, error) { return plato(in.Num(sg)) }
	}
	return []definition{
		field(TypeRecipe, "totalExtractWeight", engine.Deps("averageExtractYield", "totalMaltWeight", "conversionEfficiency"), func(in engine.Inputs) (float64, error) {
			return in.Num("totalMaltWeight") * in.Num("averageExtractYield") * in.Num("conversionEfficiency") / 100, nil
		}),
		field(TypeRecipe, "firstWortSG", engine.Deps("strikeWaterVolume", "totalExtractWeight"), func(in engine.Inputs) (float64, error) {
			return extractGravity(in.Num("totalExtractWeight"), in.Num("strikeWaterVolume"))
		}),
		field(TypeRecipe, "relativeRunOffSize", engine.Deps("spargeWaterVolume", "strikeWaterVolume"), func(in engine.Inputs) (float64, error) {
			return ratio(in.Num("spargeWaterVolume"), in.Num("strikeWaterVolume"))
		}),
		field(TypeRecipe, "firstWortExtractWeight", engine.Deps("totalExtractWeight", "relativeRunOffSize"), func(in engine.Inputs) (float64, error) {
			return in.Num("totalExtractWeight") * in.Num("relativeRunOffSize"), nil
		}),
		field(TypeRecipe, "remainingExtractWeight", engine.Deps("firstWortExtractWeight", "totalExtractWeight"), func(in engine.Inputs) (float64, error) {
			return in.Num("totalExtractWeight") - in.Num("firstWortExtractWeight"), nil
		}),
		field(TypeRecipe, "firstSpargeSG", engine.Deps("remainingExtractWeight", "strikeWaterVolume"), func(in engine.Inputs) (float64, error) {
			return extractGravity(in.Num("remainingExtractWeight"), in.Num("strikeWaterVolume"))
		}),
		field(TypeRecipe, "firstSpargeExtractWeight", engine.Deps("remainingExtractWeight", "relativeRunOffSize"), func(in engine.Inputs) (float64, error) {
			return in.Num("remainingExtractWeight") * in.Num("relativeRunOffSize"), nil
		}),
		field(TypeRecipe, "kettleExtractWeight", engine.Deps("firstWortExtractWeight", "firstSpargeExtractWeight"), func(in engine.Inputs) (float64, error) {
			return in.Num("firstWortExtractWeight") + in.Num("firstSpargeExtractWeight"), nil
		}),
		field(TypeRecipe, "brewhouseEfficiency", engine.Deps("kettleExtractWeight", "totalExtractWeight"), func(in engine.Inputs) (float64, error) {
			eff, err := ratio(in.Num("kettleExtractWeight"), in.Num("totalExtractWeight"))
			return 100 * eff, err
		}),
		field(TypeRecipe, "preBoilSG", engine.Deps("kettleExtractWeight", "preBoilVolumeCold"), func(in engine.Inputs) (float64, error) {
			return gravityFromExtract(in.Num("kettleExtractWeight"), in.Num("preBoilVolumeCold"))
		}),
		field(TypeRecipe, "postBoilExtract", engine.Deps("totalBoilExtract", "kettleExtractWeight"), func(in engine.Inputs) (float64, error) {
			return in.Num("kettleExtractWeight") + in.Num("totalBoilExtract"), nil
		}),
		field(TypeRecipe, "OG", engine.Deps("postBoilExtract", "postBoilVolumeCold"), func(in engine.Inputs) (float64, error) {
			return gravityFromExtract(in.Num("postBoilExtract"), in.Num("postBoilVolumeCold"))
		}),
		field(TypeRecipe, "OGPlato", engine.Deps("OG"), platoOf("OG")),
		field(TypeRecipe, "FG", engine.Deps("OG", "yeast.attenuation"), func(in engine.Inputs) (float64, error) {
			return (in.Num("OG")-1)*(1-in.Num("yeast.attenuation")/100) + 1, nil
		}),
		field(TypeRecipe, "FGPlato", engine.Deps("FG"), platoOf("FG")),
		field(TypeRecipe, "realFG", engine.Deps("FG", "OG"), func(in engine.Inputs) (float64, error) {
			return realGravity(in.Num("OG"), in.Num("FG")), nil
		}),
		field(TypeRecipe, "realFGPlato", engine.Deps("realFG"), platoOf("realFG")),
		field(TypeRecipe, "postFermentationExtractWeight", engine.Deps("realFG", "realFGPlato", "fermentationVolume"), func(in engine.Inputs) (float64, error) {
			return in.Num("fermentationVolume") * in.Num("realFG") * in.Num("realFGPlato") / 100, nil
		}),
		field(TypeRecipe, "ABW", engine.Deps("OGPlato", "realFGPlato"), func(in engine.Inputs) (float64, error) {
			return alcoholByWeight(in.Num("OGPlato"), in.Num("realFGPlato"))
		}),
		field(TypeRecipe, "ABV", engine.Deps("FG", "ABW"), func(in engine.Inputs) (float64, error) {
			return in.Num("ABW") * in.Num("FG") / 0.794, nil
		}),
		field(TypeRecipe, "approxABV", engine.Deps("OG", "FG"), func(in engine.Inputs) (float64, error) {
			return (in.Num("OG") - in.Num("FG")) * 131.5, nil
		}),
	}
}
