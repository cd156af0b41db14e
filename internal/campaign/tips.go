package campaign

// Tips returns static reading guidance for a chart. They accompany every view and stand in
// for generated insights in reports until one is available.
func Tips(chart string) []string {
	switch chart {
	case ChartSentiment:
		return []string{
			"Identify the dominant sentiment: a large positive share signals content that lands.",
			"Review negative sentiment: a significant negative share points at content or product issues.",
			"Watch neutral sentiment: a high neutral share may mean the message is not resonating.",
		}
	case ChartTrend:
		return []string{
			"Find engagement peaks: spikes mark unusually successful campaigns or releases.",
			"Find engagement troughs: dips suggest content fatigue or weaker campaigns in that period.",
			"Look for seasonality: repeating patterns can inform future scheduling.",
		}
	case ChartPlatform:
		return []string{
			"Find the best performing platform and focus resources where engagement is highest.",
			"Review underperforming platforms: revisit content strategy or audience targeting there.",
			"Look for platform-specific patterns that call for tailored content.",
		}
	case ChartMediaType:
		return []string{
			"Determine the preferred media formats and invest in the ones that engage most.",
			"Diversify when one format dominates to reach new audiences.",
			"Compare engagement per media type against its production cost.",
		}
	case ChartLocation:
		return []string{
			"Identify key geographic markets and focus marketing where engagement is high.",
			"Lower-engagement locations may be untapped markets for targeted campaigns.",
			"Different regions may respond better to particular themes or languages.",
		}
	default:
		return nil
	}
}
