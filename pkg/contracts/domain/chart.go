package domain

// ChartSpec describes how one summary table is drawn
type ChartSpec struct {
	Kind      DatasetKind `json:"kind"`
	Title     string      `json:"title"`
	XLabel    string      `json:"x_label"`
	YLabel    string      `json:"y_label"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	LineWidth float64     `json:"line_width"`
}

const (
	defaultChartWidth  = 800
	defaultChartHeight = 300
	defaultLineWidth   = 2
	yearsLabel         = "Years"
	prevalenceLabel    = "Prevalence (%)"
)

// DefaultChartSpecs returns the chart layout for each dataset in dashboard order.
func DefaultChartSpecs() []ChartSpec {
	return []ChartSpec{
		{
			Kind:      DatasetMean,
			Title:     "Mean BMI of adults by country income",
			XLabel:    yearsLabel,
			YLabel:    "Body Mass Index (kg/m^2)",
			Width:     defaultChartWidth,
			Height:    defaultChartHeight,
			LineWidth: defaultLineWidth,
		},
		{
			Kind:      DatasetOverweight,
			Title:     "Age-standardised prevalence of overweight adults (BMI >30 kg/m2) by country income",
			XLabel:    yearsLabel,
			YLabel:    prevalenceLabel,
			Width:     defaultChartWidth,
			Height:    defaultChartHeight,
			LineWidth: defaultLineWidth,
		},
		{
			Kind:      DatasetUnderweight,
			Title:     "Age-standardised prevalence of underweight adults (BMI <18 kg/m2) by country income",
			XLabel:    yearsLabel,
			YLabel:    prevalenceLabel,
			Width:     defaultChartWidth,
			Height:    defaultChartHeight,
			LineWidth: defaultLineWidth,
		},
	}
}

// ChartSpecFor returns the default spec for kind
func ChartSpecFor(kind DatasetKind) (ChartSpec, bool) {
	for _, spec := range DefaultChartSpecs() {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return ChartSpec{}, false
}
