package formula

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewcore/internal/engine"
)

type testEntity struct {
	ref     engine.Ref
	attrs   map[string]float64
	related map[string]*testEntity
	members map[string][]*testEntity
}

func newEntity(typ, id string, attrs map[string]float64) *testEntity {
	if attrs == nil {
		attrs = make(map[string]float64)
	}
	return &testEntity{
		ref:     engine.Ref{Type: typ, ID: id},
		attrs:   attrs,
		related: make(map[string]*testEntity),
		members: make(map[string][]*testEntity),
	}
}

func (e *testEntity) Ref() engine.Ref { return e.ref }

func (e *testEntity) Attribute(name string) (float64, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *testEntity) Related(relation string) (engine.Entity, bool) {
	r := e.related[relation]
	if r == nil {
		return nil, false
	}
	return r, true
}

func (e *testEntity) Members(collection string) []engine.Entity {
	out := make([]engine.Entity, 0, len(e.members[collection]))
	for _, m := range e.members[collection] {
		out = append(out, m)
	}
	return out
}

type brew struct {
	recipe   *testEntity
	yeast    *testEntity
	pitch    *testEntity
	beer     *testEntity
	beerType *testEntity
	hop      *testEntity
	sugar    *testEntity
}

func (b brew) addMash(id string, amount, extractYield float64) *testEntity {
	m := newEntity(TypeMashEntry, id, map[string]float64{"amount": amount, "extractYield": extractYield})
	m.related["recipe"] = b.recipe
	b.recipe.members["mashEntries"] = append(b.recipe.members["mashEntries"], m)
	return m
}

func (b brew) addBoil(id string, attrs map[string]float64) *testEntity {
	e := newEntity(TypeBoilEntry, id, attrs)
	e.related["recipe"] = b.recipe
	b.recipe.members["boilEntries"] = append(b.recipe.members["boilEntries"], e)
	return e
}

func newBrew() brew {
	b := brew{
		recipe: newEntity(TypeRecipe, "r1", map[string]float64{
			"preBoilVolume": 30, "postBoilVolume": 25, "boilTime": 60,
			"totalMaltWeight": 5, "spargeCount": 1, "conversionEfficiency": 90,
			"mashingTemp": 66, "fermentationVolume": 22, "finalVolume": 20,
			"primaryFermentationTemp": 18,
		}),
		yeast:    newEntity(TypeYeast, "y1", map[string]float64{"attenuation": 75, "cellConcentration": 7}),
		pitch:    newEntity(TypePitchType, "p1", map[string]float64{"pitchRate": 0.75}),
		beer:     newEntity(TypeBeer, "b1", nil),
		beerType: newEntity(TypeBeerType, "bt1", map[string]float64{"primingCo2Min": 4, "primingCo2Max": 5.2}),
	}
	b.recipe.related["yeast"] = b.yeast
	b.recipe.related["pitchType"] = b.pitch
	b.recipe.related["beer"] = b.beer
	b.beer.related["beerType"] = b.beerType
	b.addMash("m1", 80, 80)
	b.addMash("m2", 20, 75)
	b.hop = b.addBoil("h1", map[string]float64{"addTime": 60, "amount": 30, "alphaAcid": 10})
	b.sugar = b.addBoil("s1", map[string]float64{"addTime": 10, "amount": 500, "extractYield": 100})
	return b
}

func newEngine(t *testing.T) (*engine.Engine, *engine.CountingRecorder) {
	t.Helper()
	g, err := Compile()
	require.NoError(t, err)
	rec := engine.NewCountingRecorder()
	return engine.New(g, engine.WithRecorder(rec)), rec
}

func get(t *testing.T, e *engine.Engine, ent engine.Entity, field string) float64 {
	t.Helper()
	v, err := e.Get(ent, field)
	require.NoError(t, err, field)
	f, ok := v.Float()
	require.Truef(t, ok, "%s undefined: %v", field, v.Reason())
	return f
}

func undefined(t *testing.T, e *engine.Engine, ent engine.Entity, field string) *engine.UndefinedPathError {
	t.Helper()
	v, err := e.Get(ent, field)
	require.NoError(t, err, field)
	require.Falsef(t, v.Defined(), "%s should be undefined, got %s", field, v)
	var up *engine.UndefinedPathError
	require.ErrorAs(t, v.Reason(), &up)
	return up
}

func TestCompileOrdersEveryField(t *testing.T) {
	g, err := Compile()
	require.NoError(t, err)

	recipeFields := g.Fields(TypeRecipe)
	assert.Len(t, recipeFields, 44)
	assert.Equal(t, []string{"weightedExtract"}, g.Fields(TypeMashEntry))
	assert.ElementsMatch(t, []string{"extractWeight", "IBU"}, g.Fields(TypeBoilEntry))

	pos := make(map[string]int)
	for i, f := range g.Order() {
		pos[f] = i
	}
	chain := []string{
		"recipe.totalExtractWeight", "recipe.firstWortExtractWeight", "recipe.remainingExtractWeight",
		"recipe.firstSpargeExtractWeight", "recipe.kettleExtractWeight", "recipe.postBoilExtract",
		"recipe.OG", "recipe.OGPlato", "recipe.ABW", "recipe.ABV",
	}
	for i := 1; i < len(chain); i++ {
		assert.Less(t, pos[chain[i-1]], pos[chain[i]], "%s before %s", chain[i-1], chain[i])
	}
	assert.Less(t, pos["recipe.OG"], pos["boil_entry.IBU"])
	assert.Less(t, pos["boil_entry.IBU"], pos["recipe.IBU"])

	for _, f := range recipeFields {
		lvl, ok := g.Level(TypeRecipe, f)
		require.True(t, ok)
		assert.Less(t, lvl, 15, f)
	}
}

func TestRegisterTwiceIsRejected(t *testing.T) {
	s, err := NewSchema()
	require.NoError(t, err)
	err = Register(s)
	require.Error(t, err)
	assert.True(t, engine.IsDuplicateField(err))
}

func TestFullRecipe(t *testing.T) {
	b := newBrew()
	e, _ := newEngine(t)

	cases := map[string]float64{
		"strikeWaterVolume":             18.9,
		"spargeWaterVolume":             14.4,
		"waterToMaltRatio":              3.78,
		"strikeWaterTemp":               71.08677248677249,
		"lauterEfficiency":              94.3310657596372,
		"averageExtractYield":           0.79,
		"totalExtractWeight":            3.555,
		"firstWortSG":                   1.0647048011586737,
		"firstSpargeSG":                 1.0168209886199218,
		"kettleExtractWeight":           3.3534693877551023,
		"brewhouseEfficiency":           94.3310657596372,
		"preBoilSG":                     1.0449574939370858,
		"boilOff":                       5,
		"totalBoilExtract":              0.5,
		"OG":                            1.061992750768261,
		"OGPlato":                       15.118862569790934,
		"FG":                            1.0154981876920652,
		"realFG":                        1.0239044046962416,
		"ABW":                           4.765399626101364,
		"ABV":                           6.094779198909799,
		"approxABV":                     6.114035044519735,
		"postFermentationExtractWeight": 1.3620729795918407,
		"IBU":                           24.851489572982974,
		"yeastCellsNeeded":              249.46123240155043,
		"yeastNeeded":                   35.637318914507205,
		"dissolvedCO2":                  1.8302772959999989,
		"dissolvedCO2Alt":               3.52431291005946,
		"requiredTableSugarMin":         86.78890816000005,
		"requiredTableSugarMax":         134.78890816000006,
		"totalAmount":                   100,
		"unassignedMalt":                0,
		"leftInKettle":                  2,
		"leftInFermentor":               2,
	}
	for field, want := range cases {
		assert.InDelta(t, want, get(t, e, b.recipe, field), 1e-6, field)
	}
	assert.Equal(t, 0.0, get(t, e, b.sugar, "IBU"), "alpha acid defaults to zero")
	assert.Equal(t, 0.0, get(t, e, b.hop, "extractWeight"), "extract yield defaults to zero")
}

func TestBoilOff(t *testing.T) {
	r := newEntity(TypeRecipe, "r", map[string]float64{"preBoilVolume": 30, "postBoilVolume": 25, "boilTime": 60})
	e, _ := newEngine(t)
	assert.InDelta(t, 5.0, get(t, e, r, "boilOff"), 1e-12)

	r.attrs["boilTime"] = 0
	e.Invalidate(r.ref, "boilTime")
	_, err := e.Get(r, "boilOff")
	assert.True(t, errors.Is(err, engine.ErrDivisionByZero))
}

func TestDissolvedCO2(t *testing.T) {
	r := newEntity(TypeRecipe, "r", map[string]float64{"primaryFermentationTemp": 18})
	e, _ := newEngine(t)
	want := 2 * (3.0378 - 0.050062*64.4 + 0.00026555*64.4*64.4)
	assert.InDelta(t, want, get(t, e, r, "dissolvedCO2"), 1e-6)
}

func TestZeroMaltWeightIsUndefinedResult(t *testing.T) {
	r := newEntity(TypeRecipe, "r", map[string]float64{"preBoilVolume": 30, "spargeCount": 1, "totalMaltWeight": 0})
	e, _ := newEngine(t)

	v, err := e.Get(r, "waterToMaltRatio")
	var ue *engine.UndefinedResultError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "waterToMaltRatio", ue.Field)
	assert.True(t, errors.Is(err, engine.ErrDivisionByZero))
	assert.False(t, v.Defined())

	_, err = e.Get(r, "strikeWaterTemp")
	assert.True(t, engine.IsUndefinedResult(err))
	// siblings are unaffected.
	assert.InDelta(t, 14.4, get(t, e, r, "strikeWaterVolume"), 1e-9)
}

func TestSpargeCountZero(t *testing.T) {
	r := newEntity(TypeRecipe, "r", map[string]float64{"preBoilVolume": 30, "spargeCount": 0, "totalMaltWeight": 5})
	e, _ := newEngine(t)
	assert.Equal(t, 0.0, get(t, e, r, "spargeWaterVolume"))
	assert.Equal(t, 100.0, get(t, e, r, "lauterEfficiency"))
	assert.InDelta(t, 28.8+4.5, get(t, e, r, "strikeWaterVolume"), 1e-9)

	delete(r.attrs, "spargeCount")
	e.Invalidate(r.ref, "spargeCount")
	assert.Equal(t, "spargeCount", undefined(t, e, r, "lauterEfficiency").Segment)
}

func TestSpargeCountZeroNeedsNoVolumes(t *testing.T) {
	r := newEntity(TypeRecipe, "r", map[string]float64{"spargeCount": 0})
	e, _ := newEngine(t)
	assert.Equal(t, 0.0, get(t, e, r, "spargeWaterVolume"))
	assert.Equal(t, 100.0, get(t, e, r, "lauterEfficiency"))
	assert.Equal(t, "preBoilVolume", undefined(t, e, r, "strikeWaterVolume").Segment)

	r.attrs["spargeCount"] = 1
	e.Invalidate(r.ref, "spargeCount")
	assert.Equal(t, "preBoilVolume", undefined(t, e, r, "spargeWaterVolume").Segment)
	undefined(t, e, r, "lauterEfficiency")

	r.attrs["preBoilVolume"] = 30
	r.attrs["totalMaltWeight"] = 5
	e.Invalidate(r.ref, "preBoilVolume")
	e.Invalidate(r.ref, "totalMaltWeight")
	assert.InDelta(t, 14.4, get(t, e, r, "spargeWaterVolume"), 1e-9)
	assert.InDelta(t, 100*(14.4+4.5*14.4/18.9)/18.9, get(t, e, r, "lauterEfficiency"), 1e-9)
}

func TestTotalAmountTracksMembership(t *testing.T) {
	b := brew{recipe: newEntity(TypeRecipe, "r", nil)}
	e, _ := newEngine(t)
	assert.Equal(t, 0.0, get(t, e, b.recipe, "totalAmount"))
	assert.Equal(t, 100.0, get(t, e, b.recipe, "unassignedMalt"))

	b.addMash("a", 40, 80)
	b.addMash("b", 20, 80)
	e.Invalidate(b.recipe.ref, "mashEntries")
	assert.Equal(t, 60.0, get(t, e, b.recipe, "totalAmount"))

	b.addMash("c", 10, 80)
	e.Invalidate(b.recipe.ref, "mashEntries")
	assert.Equal(t, 70.0, get(t, e, b.recipe, "totalAmount"))
	assert.Equal(t, 30.0, get(t, e, b.recipe, "unassignedMalt"))
}

func TestYeastSizingCrossesEntities(t *testing.T) {
	b := newBrew()
	e, rec := newEngine(t)
	get(t, e, b.recipe, "yeastNeeded")
	rec.Reset()

	b.yeast.attrs["cellConcentration"] = 10
	e.Invalidate(b.yeast.ref, "cellConcentration")
	assert.InDelta(t, 24.946123240155043, get(t, e, b.recipe, "yeastNeeded"), 1e-9)
	assert.Equal(t, 0, rec.Recomputations(TypeRecipe, "yeastCellsNeeded"))
	assert.Equal(t, 1, rec.Recomputations(TypeRecipe, "yeastNeeded"))

	b.recipe.related["pitchType"] = nil
	e.Invalidate(b.recipe.ref, "pitchType")
	up := undefined(t, e, b.recipe, "yeastNeeded")
	assert.Equal(t, "pitchType", up.Segment)
	assert.Equal(t, "pitchType.pitchRate", up.Path)
	assert.InDelta(t, 15.118862569790934, get(t, e, b.recipe, "OGPlato"), 1e-9)

	b.yeast.attrs["cellConcentration"] = 0
	b.recipe.related["pitchType"] = b.pitch
	e.Invalidate(b.recipe.ref, "pitchType")
	e.Invalidate(b.yeast.ref, "cellConcentration")
	_, err := e.Get(b.recipe, "yeastNeeded")
	assert.True(t, errors.Is(err, engine.ErrDivisionByZero))
}

func TestPrimingSugarTwoHopPath(t *testing.T) {
	b := newBrew()
	e, rec := newEngine(t)
	delete(b.beer.related, "beerType")
	assert.Equal(t, "beerType", undefined(t, e, b.recipe, "requiredTableSugarMin").Segment)

	b.beer.related["beerType"] = b.beerType
	e.Invalidate(b.beer.ref, "beerType")
	assert.InDelta(t, 86.78890816000005, get(t, e, b.recipe, "requiredTableSugarMin"), 1e-6)
	get(t, e, b.recipe, "requiredTableSugarMax")
	rec.Reset()

	b.beerType.attrs["primingCo2Min"] = 5
	e.Invalidate(b.beerType.ref, "primingCo2Min")
	assert.InDelta(t, 40*(5-1.8302772959999989), get(t, e, b.recipe, "requiredTableSugarMin"), 1e-6)
	assert.True(t, e.Cached(b.recipe.ref, "requiredTableSugarMax"))
	assert.Equal(t, 0, rec.Recomputations(TypeRecipe, "dissolvedCO2"))
}

func TestGravityChainRecomputesOncePerChange(t *testing.T) {
	b := newBrew()
	e, rec := newEngine(t)
	for _, f := range []string{"ABV", "approxABV", "FGPlato", "IBU", "yeastNeeded"} {
		get(t, e, b.recipe, f)
	}
	for _, f := range []string{"OG", "OGPlato", "FG", "realFG", "ABW", "ABV"} {
		assert.Equal(t, 1, rec.Recomputations(TypeRecipe, f), f)
	}
	rec.Reset()

	b.recipe.attrs["conversionEfficiency"] = 80
	e.Invalidate(b.recipe.ref, "conversionEfficiency")
	for _, f := range []string{"ABV", "approxABV", "FGPlato", "IBU", "yeastNeeded"} {
		get(t, e, b.recipe, f)
	}
	for _, f := range []string{"totalExtractWeight", "kettleExtractWeight", "OG", "OGPlato", "FG", "realFG", "ABW", "ABV"} {
		assert.Equal(t, 1, rec.Recomputations(TypeRecipe, f), f)
	}
	assert.Equal(t, 2, rec.Recomputations(TypeBoilEntry, "IBU"), "one per boil entry")
	assert.Equal(t, 0, rec.Recomputations(TypeRecipe, "strikeWaterVolume"))
	assert.Equal(t, 0, rec.Recomputations(TypeBoilEntry, "extractWeight"))
}

func TestSortedBoilEntries(t *testing.T) {
	b := newBrew()
	late := b.addBoil("h2", map[string]float64{"addTime": 10, "amount": 20, "alphaAcid": 4})
	e, _ := newEngine(t)

	v, err := e.Get(b.recipe, "sortedBoilEntries")
	require.NoError(t, err)
	var ids []string
	for _, ent := range v.Entities() {
		ids = append(ids, ent.Ref().ID)
	}
	assert.Equal(t, []string{"s1", "h2", "h1"}, ids)

	late.attrs["addTime"] = 90
	e.Invalidate(late.ref, "addTime")
	v, err = e.Get(b.recipe, "sortedBoilEntries")
	require.NoError(t, err)
	assert.Equal(t, "h2", v.Entities()[2].Ref().ID)
}

func TestHopBitternessFollowsRecipe(t *testing.T) {
	b := newBrew()
	e, _ := newEngine(t)
	before := get(t, e, b.recipe, "IBU")

	b.recipe.attrs["postBoilVolume"] = 50
	e.Invalidate(b.recipe.ref, "postBoilVolume")
	assert.False(t, e.Cached(b.hop.ref, "IBU"))
	after := get(t, e, b.recipe, "IBU")
	// utilisation rises as the wort gets thinner, so bitterness drops by less than half.
	assert.Less(t, after, before)
	assert.Greater(t, after, before/2)
}

func TestPureHelpers(t *testing.T) {
	for _, c := range []struct {
		sg, plato float64
	}{
		{1, 0},
		{1.040, 259 - 259/1.040},
	} {
		t.Run(fmt.Sprint(c.sg), func(t *testing.T) {
			p, err := plato(c.sg)
			require.NoError(t, err)
			assert.InDelta(t, c.plato, p, 1e-12)
		})
	}
	_, err := plato(0)
	assert.ErrorIs(t, err, engine.ErrDivisionByZero)

	_, err = extractGravity(0, 0)
	assert.ErrorIs(t, err, engine.ErrDivisionByZero)

	ibu, err := tinseth(1.05, 0, 10, 30, 20)
	require.NoError(t, err)
	assert.Zero(t, ibu, "no boil, no isomerisation")

	assert.False(t, math.IsNaN(dissolvedCO2Alt(-273.15+1)))
}
