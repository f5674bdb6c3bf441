package features

// Feature names as used by the fitted pipeline. Case sensitive.
const (
	BMI              = "BMI"
	BiologicsHistory = "Biologics_History"
	BaselinePASI     = "Baseline_PASI"
	Hemoglobin       = "Hemoglobin"
	ALP              = "ALP"
	IBil             = "IBil"
	SII              = "SII"
)

var clinicalDefinitions = []Definition{
	{Name: BMI, Label: "Body mass index (BMI)", Kind: Numerical, Min: 10.0, Max: 50.0, Default: 24.0},
	{Name: BiologicsHistory, Label: "Prior biologics use (0 = no, 1 = yes)", Kind: Categorical, Options: []float64{0, 1}, Default: 0},
	{Name: BaselinePASI, Label: "Baseline PASI score", Kind: Numerical, Min: 0.0, Max: 72.0, Default: 15.0},
	{Name: Hemoglobin, Label: "Hemoglobin (Hb, g/L)", Kind: Numerical, Min: 50.0, Max: 200.0, Default: 130.0},
	{Name: ALP, Label: "Alkaline phosphatase (ALP, U/L)", Kind: Numerical, Min: 10.0, Max: 300.0, Default: 70.0},
	{Name: IBil, Label: "Indirect bilirubin (IBil, µmol/L)", Kind: Numerical, Min: 0.0, Max: 50.0, Default: 10.0},
	{Name: SII, Label: "Systemic immune-inflammation index (SII)", Kind: Numerical, Min: 0.0, Max: 5000.0, Default: 500.0},
}

// Default returns the seven-feature schema of the IL-17A response model.
func Default() Schema {
	s, err := NewSchema(clinicalDefinitions...)
	if err != nil {
		panic("features: invalid built-in schema: " + err.Error())
	}
	return s
}
