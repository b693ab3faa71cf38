package results

import (
	"github.com/variant-labs/variant-go/internal/domain"
)

// aggregateVariants computes per-variant metrics from assignment counts and
// attributed events. Variants arrive in creation order; the first one is
// the lift baseline, an explicit and documented convention rather than an
// accident of iteration order.
func aggregateVariants(variants []domain.Variant, assignmentCounts map[string]int64, attributed []AttributedEvent) []domain.VariantMetrics {
	eventsByVariant := make(map[string]int64, len(variants))
	convertersByVariant := make(map[string]map[string]struct{}, len(variants))
	typeCountsByVariant := make(map[string]map[string]int64, len(variants))

	for _, ae := range attributed {
		eventsByVariant[ae.VariantID]++
		users, ok := convertersByVariant[ae.VariantID]
		if !ok {
			users = make(map[string]struct{})
			convertersByVariant[ae.VariantID] = users
		}
		users[ae.Event.UserID] = struct{}{}

		typeCounts, ok := typeCountsByVariant[ae.VariantID]
		if !ok {
			typeCounts = make(map[string]int64)
			typeCountsByVariant[ae.VariantID] = typeCounts
		}
		typeCounts[ae.Event.Type]++
	}

	metrics := make([]domain.VariantMetrics, 0, len(variants))
	for _, variant := range variants {
		total := assignmentCounts[variant.ID]
		events := eventsByVariant[variant.ID]
		converted := int64(len(convertersByVariant[variant.ID]))

		var rate, perUser float64
		if total > 0 {
			rate = float64(converted) / float64(total)
			perUser = float64(events) / float64(total)
		}

		typeCounts := typeCountsByVariant[variant.ID]
		if typeCounts == nil {
			typeCounts = map[string]int64{}
		}

		metrics = append(metrics, domain.VariantMetrics{
			VariantID:         variant.ID,
			VariantName:       variant.Name,
			TotalAssignments:  total,
			TotalEvents:       events,
			ConvertedUsers:    converted,
			ConversionRate:    rate,
			EventsPerUser:     perUser,
			EventsByType:      typeCounts,
			TrafficAllocation: variant.TrafficAllocation,
		})
	}

	applyLift(metrics)
	return metrics
}

// applyLift fills Lift relative to the baseline (first) variant. The
// baseline itself and every variant get nil lift when the baseline rate is
// zero, since relative lift is undefined there.
func applyLift(metrics []domain.VariantMetrics) {
	if len(metrics) == 0 {
		return
	}
	baselineRate := metrics[0].ConversionRate
	if baselineRate == 0 {
		return
	}
	for i := 1; i < len(metrics); i++ {
		lift := (metrics[i].ConversionRate - baselineRate) / baselineRate
		metrics[i].Lift = &lift
	}
}

// leadingVariant picks the non-baseline variant with the highest conversion
// rate. It returns nil when there is no such variant, when every rate is
// zero, when all rates are equal, or when the top spot is tied.
func leadingVariant(metrics []domain.VariantMetrics) *domain.VariantMetrics {
	if len(metrics) < 2 {
		return nil
	}

	allEqual := true
	for i := 1; i < len(metrics); i++ {
		if metrics[i].ConversionRate != metrics[0].ConversionRate {
			allEqual = false
			break
		}
	}
	if allEqual {
		return nil
	}

	best := -1
	tied := false
	for i := 1; i < len(metrics); i++ {
		if best == -1 || metrics[i].ConversionRate > metrics[best].ConversionRate {
			best = i
			tied = false
		} else if metrics[i].ConversionRate == metrics[best].ConversionRate {
			tied = true
		}
	}
	if best == -1 || tied || metrics[best].ConversionRate == 0 {
		return nil
	}
	return &metrics[best]
}

func summarize(metrics []domain.VariantMetrics, eventsByType map[string]int64) domain.Summary {
	var totalAssignments, totalEvents, totalConverted int64
	for _, m := range metrics {
		totalAssignments += m.TotalAssignments
		totalEvents += m.TotalEvents
		totalConverted += m.ConvertedUsers
	}

	var overall float64
	if totalAssignments > 0 {
		overall = float64(totalConverted) / float64(totalAssignments)
	}

	summary := domain.Summary{
		TotalAssignments:      totalAssignments,
		TotalEvents:           totalEvents,
		OverallConversionRate: overall,
		Confidence:            domain.ConfidenceLow,
	}
	if len(metrics) > 0 {
		summary.BaselineVariant = metrics[0].VariantName
	}

	leader := leadingVariant(metrics)
	if leader == nil {
		return summary
	}
	name := leader.VariantName
	summary.LeadingVariant = &name

	baseline := metrics[0]
	summary.Confidence = Classify(
		minSample(baseline.TotalAssignments, leader.TotalAssignments),
		liftMagnitude(baseline.ConversionRate, leader.ConversionRate),
	)
	return summary
}

func minSample(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// liftMagnitude is |relative lift| of the leader against the baseline. A
// zero baseline with a converting leader counts as 100% lift, mirroring
// how the label is presented to users.
func liftMagnitude(baselineRate, leaderRate float64) float64 {
	if baselineRate == 0 {
		if leaderRate > 0 {
			return 1.0
		}
		return 0.0
	}
	lift := (leaderRate - baselineRate) / baselineRate
	if lift < 0 {
		return -lift
	}
	return lift
}
