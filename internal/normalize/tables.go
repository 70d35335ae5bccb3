package normalize

import "github.com/rxbridge/rxmatch/internal/models"

// abbreviations is the fixed expansion table applied before stemming.
// Keys are lowercase raw tokens; values are their canonical spellings.
var abbreviations = map[string]string{
	"tab":   "tablet",
	"tabs":  "tablet",
	"cap":   "capsule",
	"caps":  "capsule",
	"inj":   "injection",
	"sol":   "solution",
	"soln":  "solution",
	"susp":  "suspension",
	"supp":  "suppository",
	"oint":  "ointment",
	"crm":   "cream",
	"syr":   "syrup",
	"pwd":   "powder",
	"elix":  "elixir",
	"liq":   "liquid",
	"conc":  "concentrate",
	"chew":  "chewable",
	"sl":    "sublingual",
	"od":    "oral",
	"top":   "topical",
	"inh":   "inhalation",
	"neb":   "nebulizer",
	"mdi":   "inhaler",
	"hcl":   "hydrochloride",
	"hbr":   "hydrobromide",
	"na":    "sodium",
	"k":     "potassium",
	"vit":   "vitamin",
	"er":    "extended",
	"xr":    "extended",
	"sr":    "sustained",
	"dr":    "delayed",
	"oph":   "ophthalmic",
	"otic":  "otic",
	"rect":  "rectal",
	"vag":   "vaginal",
}

// unitSpelling maps raw unit spellings to canonical uppercase forms.
var unitSpelling = map[string]string{
	"mcg":      "MCG",
	"ug":       "MCG",
	"µg":  "MCG", // µg
	"μg":  "MCG", // μg (Greek mu)
	"mg":       "MG",
	"mgs":      "MG",
	"milligram": "MG",
	"g":        "G",
	"gm":       "G",
	"gr":       "G",
	"gram":     "G",
	"kg":       "KG",
	"ml":       "ML",
	"cc":       "ML",
	"l":        "L",
	"iu":       "IU",
	"intl":     "IU",
	"unt":      "UNT",
	"unit":     "UNT",
	"units":    "UNT",
	"meq":      "MEQ",
	"mmol":     "MMOL",
	"hr":       "HR",
	"hour":     "HR",
	"%":        "%",
	"pct":      "%",
	"percent":  "%",
}

// unitInfo maps a canonical unit to its kind and the factor converting a value
// in that unit to the kind's base unit (MG for weight, ML for volume,
// MG/ML for concentration). Special units carry factor 1 and compare only
// against the same unit spelling.
type unitMeta struct {
	Kind   models.UnitKind
	Factor float64
}

var unitInfo = map[string]unitMeta{
	"MCG": {models.UnitKindWeight, 0.001},
	"MG":  {models.UnitKindWeight, 1},
	"G":   {models.UnitKindWeight, 1000},
	"KG":  {models.UnitKindWeight, 1e6},
	"ML":  {models.UnitKindVolume, 1},
	"L":   {models.UnitKindVolume, 1000},
	"%":   {models.UnitKindPercent, 1},
	"IU":  {models.UnitKindSpecial, 1},
	"UNT": {models.UnitKindSpecial, 1},
	"MEQ": {models.UnitKindSpecial, 1},
	"MMOL": {models.UnitKindSpecial, 1},
	"HR":  {models.UnitKindSpecial, 1},

	// Weight-per-volume concentrations, base MG/ML. 1 G/L == 1 MG/ML.
	"MG/ML":  {models.UnitKindConcentration, 1},
	"MCG/ML": {models.UnitKindConcentration, 0.001},
	"G/ML":   {models.UnitKindConcentration, 1000},
	"MG/L":   {models.UnitKindConcentration, 0.001},
	"G/L":    {models.UnitKindConcentration, 1},
	"UNT/ML": {models.UnitKindSpecial, 1},
	"IU/ML":  {models.UnitKindSpecial, 1},
	"MEQ/ML": {models.UnitKindSpecial, 1},
}

// formWords are dose-form keywords (stored post-stemming). Form words are not
// drug words and never pass the relevance gate on their own.
var formWords = map[string]bool{
	"tablet":      true,
	"capsule":     true,
	"solution":    true,
	"suspension":  true,
	"injection":   true,
	"injectable":  true,
	"cream":       true,
	"ointment":    true,
	"gel":         true,
	"lotion":      true,
	"patch":       true,
	"syrup":       true,
	"elixir":      true,
	"liquid":      true,
	"powder":      true,
	"granule":     true,
	"spray":       true,
	"drop":        true,
	"suppository": true,
	"lozenge":     true,
	"film":        true,
	"wafer":       true,
	"inhaler":     true,
	"aerosol":     true,
	"nebulizer":   true,
	"cartridge":   true,
	"syringe":     true,
	"vial":        true,
	"ampule":      true,
	"pen":         true,
	"kit":         true,
	"pack":        true,
	"gas":         true,
	"chewable":    true,
	"extend":      true,
	"sustain":     true,
	"delay":       true,
	"release":     true,
	"concentrate": true,
	"prefill":     true,
}

// routeWords map route adjectives to routes. Used for query hints and catalog
// inference; route words are not drug words.
var routeWords = map[string]models.Route{
	"oral":         models.RouteOral,
	"sublingual":   models.RouteOral,
	"injection":    models.RouteInjection,
	"injectable":   models.RouteInjection,
	"intravenous":  models.RouteInjection,
	"intramuscular": models.RouteInjection,
	"subcutaneous": models.RouteInjection,
	"inhalation":   models.RouteInhalation,
	"inhal":        models.RouteInhalation,
	"respiratory":  models.RouteInhalation,
	"topical":      models.RouteTopical,
	"ophthalmic":   models.RouteTopical,
	"transdermal":  models.RouteTransdermal,
}

// stopwords are connective tokens that never count as drug words.
var stopwords = map[string]bool{
	"a":    true,
	"an":   true,
	"and":  true,
	"as":   true,
	"by":   true,
	"each": true,
	"for":  true,
	"in":   true,
	"of":   true,
	"or":   true,
	"per":  true,
	"the":  true,
	"with": true,
}
