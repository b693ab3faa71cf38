package results

import (
	"testing"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
)

func attributedFor(variantID, userID, eventType string, count int) []AttributedEvent {
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	out := make([]AttributedEvent, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, AttributedEvent{
			Event:     domain.Event{UserID: userID, Type: eventType, Timestamp: base.Add(time.Duration(i) * time.Minute)},
			VariantID: variantID,
		})
	}
	return out
}

func TestAggregateVariantsRatesAndLift(t *testing.T) {
	variants := []domain.Variant{
		{ID: "v-control", Name: "control", TrafficAllocation: 50},
		{ID: "v-treatment", Name: "treatment", TrafficAllocation: 50},
	}
	counts := map[string]int64{"v-control": 100, "v-treatment": 100}

	var attributed []AttributedEvent
	// 10 distinct converters on control, 15 on treatment.
	for i := 0; i < 10; i++ {
		attributed = append(attributed, attributedFor("v-control", "c-user-"+string(rune('a'+i)), "purchase", 1)...)
	}
	for i := 0; i < 15; i++ {
		attributed = append(attributed, attributedFor("v-treatment", "t-user-"+string(rune('a'+i)), "purchase", 1)...)
	}

	metrics := aggregateVariants(variants, counts, attributed)
	if len(metrics) != 2 {
		t.Fatalf("metrics count = %d, want 2", len(metrics))
	}
	if metrics[0].ConversionRate != 0.10 {
		t.Fatalf("control rate = %v, want 0.10", metrics[0].ConversionRate)
	}
	if metrics[1].ConversionRate != 0.15 {
		t.Fatalf("treatment rate = %v, want 0.15", metrics[1].ConversionRate)
	}
	if metrics[0].Lift != nil {
		t.Fatalf("baseline lift = %v, want nil", *metrics[0].Lift)
	}
	if metrics[1].Lift == nil {
		t.Fatal("treatment lift is nil, want value")
	}
	if got := *metrics[1].Lift; got < 0.49 || got > 0.51 {
		t.Fatalf("treatment lift = %v, want 0.5", got)
	}
	if metrics[1].EventsByType["purchase"] != 15 {
		t.Fatalf("treatment purchase count = %d, want 15", metrics[1].EventsByType["purchase"])
	}
}

func TestAggregateVariantsRepeatUserCountsOnce(t *testing.T) {
	variants := []domain.Variant{{ID: "v1", Name: "only", TrafficAllocation: 100}}
	counts := map[string]int64{"v1": 10}
	attributed := attributedFor("v1", "user-1", "click", 5)

	metrics := aggregateVariants(variants, counts, attributed)
	if metrics[0].ConvertedUsers != 1 {
		t.Fatalf("converted users = %d, want 1", metrics[0].ConvertedUsers)
	}
	if metrics[0].TotalEvents != 5 {
		t.Fatalf("total events = %d, want 5", metrics[0].TotalEvents)
	}
	if metrics[0].EventsPerUser != 0.5 {
		t.Fatalf("events per user = %v, want 0.5", metrics[0].EventsPerUser)
	}
}

func TestAggregateVariantsZeroAssignments(t *testing.T) {
	variants := []domain.Variant{
		{ID: "v1", Name: "control"},
		{ID: "v2", Name: "treatment"},
	}

	metrics := aggregateVariants(variants, map[string]int64{}, nil)
	for _, m := range metrics {
		if m.ConversionRate != 0 || m.EventsPerUser != 0 {
			t.Fatalf("variant %s rates = %v/%v, want zero", m.VariantName, m.ConversionRate, m.EventsPerUser)
		}
		if m.EventsByType == nil {
			t.Fatalf("variant %s events by type is nil", m.VariantName)
		}
	}
}

func TestApplyLiftZeroBaseline(t *testing.T) {
	metrics := []domain.VariantMetrics{
		{VariantName: "control", ConversionRate: 0},
		{VariantName: "treatment", ConversionRate: 0.2},
	}
	applyLift(metrics)
	if metrics[1].Lift != nil {
		t.Fatalf("lift with zero baseline = %v, want nil", *metrics[1].Lift)
	}
}

func TestLeadingVariant(t *testing.T) {
	tests := []struct {
		name  string
		rates []float64
		want  string
	}{
		{name: "clear leader", rates: []float64{0.10, 0.15, 0.12}, want: "v1"},
		{name: "baseline ahead", rates: []float64{0.20, 0.10, 0.15}, want: "v2"},
		{name: "all equal", rates: []float64{0.10, 0.10, 0.10}, want: ""},
		{name: "all zero", rates: []float64{0, 0, 0}, want: ""},
		{name: "top tied", rates: []float64{0.10, 0.15, 0.15}, want: ""},
		{name: "single variant", rates: []float64{0.10}, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			metrics := make([]domain.VariantMetrics, len(tc.rates))
			for i, rate := range tc.rates {
				metrics[i] = domain.VariantMetrics{VariantName: "v" + string(rune('0'+i)), ConversionRate: rate}
			}
			got := leadingVariant(metrics)
			if tc.want == "" {
				if got != nil {
					t.Fatalf("leading variant = %q, want nil", got.VariantName)
				}
				return
			}
			if got == nil {
				t.Fatalf("leading variant is nil, want %q", tc.want)
			}
			if got.VariantName != tc.want {
				t.Fatalf("leading variant = %q, want %q", got.VariantName, tc.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		minSample int64
		lift      float64
		want      domain.ConfidenceLevel
	}{
		{name: "significant", minSample: 1000, lift: 0.10, want: domain.ConfidenceSignificant},
		{name: "high", minSample: 500, lift: 0.15, want: domain.ConfidenceHigh},
		{name: "medium", minSample: 100, lift: 0.20, want: domain.ConfidenceMedium},
		{name: "big sample small lift", minSample: 5000, lift: 0.05, want: domain.ConfidenceLow},
		{name: "big lift small sample", minSample: 50, lift: 0.90, want: domain.ConfidenceLow},
		{name: "just under significant", minSample: 999, lift: 0.50, want: domain.ConfidenceHigh},
		{name: "nothing", minSample: 0, lift: 0, want: domain.ConfidenceLow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.minSample, tc.lift); got != tc.want {
				t.Fatalf("Classify(%d, %v) = %q, want %q", tc.minSample, tc.lift, got, tc.want)
			}
		})
	}
}

func TestSummarizeZeroBaselineConvertingLeader(t *testing.T) {
	metrics := []domain.VariantMetrics{
		{VariantID: "v1", VariantName: "control", TotalAssignments: 600, ConversionRate: 0},
		{VariantID: "v2", VariantName: "treatment", TotalAssignments: 600, ConvertedUsers: 90, ConversionRate: 0.15},
	}
	summary := summarize(metrics, map[string]int64{})
	if summary.LeadingVariant == nil || *summary.LeadingVariant != "treatment" {
		t.Fatalf("leading variant = %v, want treatment", summary.LeadingVariant)
	}
	// Zero baseline with a converting leader counts as 100% lift.
	if summary.Confidence != domain.ConfidenceHigh {
		t.Fatalf("confidence = %q, want high", summary.Confidence)
	}
}
