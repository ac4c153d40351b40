package formula

import "brewcore/internal/engine"

func yeastDefinitions() []definition {
	return []definition{
		// billions of cells: °P × litres × million cells per ml per °P
		field(TypeRecipe, "yeastCellsNeeded", engine.Deps("OGPlato", "fermentationVolume", "pitchType.pitchRate"), func(in engine.Inputs) (float64, error) {
			return in.Num("OGPlato") * in.Num("fermentationVolume") * in.Num("pitchType.pitchRate"), nil
		}),
		field(TypeRecipe, "yeastNeeded", engine.Deps("yeastCellsNeeded", "yeast.cellConcentration"), func(in engine.Inputs) (float64, error) {
			return ratio(in.Num("yeastCellsNeeded"), in.Num("yeast.cellConcentration"))
		}),
	}
}
