package recon

// Outcome classifies how a comparison key fared across the two sides.
type Outcome string

const (
	OutcomeFound      Outcome = "found"       // present on both sides, sizes agree
	OutcomeSizeIssue  Outcome = "size_issue"  // present on both sides, target suspiciously small
	OutcomeSourceOnly Outcome = "source_only" // missing from the target
	OutcomeTargetOnly Outcome = "target_only" // present only on the target
)

// ItemComparison pairs a comparison key with its outcome and the item
// snapshots behind it. Source or Target is nil for one-sided outcomes.
type ItemComparison struct {
	Key     string      `json:"key"`
	Outcome Outcome     `json:"outcome"`
	Source  *RemoteItem `json:"source,omitempty"`
	Target  *RemoteItem `json:"target,omitempty"`
}

// DiffReport is the result of reconciling two enumerated item sets.
// Outcomes form a total partition of the union of source and target keys:
// every key maps to exactly one outcome.
type DiffReport struct {
	Comparisons []ItemComparison `json:"comparisons"`

	Found      int `json:"found"`
	SizeIssues int `json:"size_issues"`
	SourceOnly int `json:"source_only"`
	TargetOnly int `json:"target_only"`

	// Informational only, not part of the outcome partition.
	SourceAvgVersions float64 `json:"source_avg_versions"`
	TargetAvgVersions float64 `json:"target_avg_versions"`

	CompletenessPercent float64 `json:"completeness_percent"`
}

// Diff joins two independently enumerated item sets by canonical path key and
// classifies every key. thresholdRatio flags a matched pair as a size issue
// when targetSize < sourceSize*thresholdRatio, or when the target is empty
// against a nonzero source.
//
// Output order is deterministic: source items in input order, then
// target-only items in target input order. Duplicate keys within a side keep
// the first occurrence, matching the joined map semantics.
func Diff(source, target []RemoteItem, sourceKeys, targetKeys KeyContext, thresholdRatio float64) *DiffReport {
	report := &DiffReport{}

	targetByKey := make(map[string]*RemoteItem, len(target))
	targetOrder := make([]string, 0, len(target))
	for i := range target {
		key := targetKeys.Key(target[i])
		if _, exists := targetByKey[key]; exists {
			continue
		}
		targetByKey[key] = &target[i]
		targetOrder = append(targetOrder, key)
	}

	sourceSeen := make(map[string]struct{}, len(source))
	matchedTargets := make(map[string]struct{}, len(target))

	for i := range source {
		src := &source[i]
		key := sourceKeys.Key(*src)
		if _, dup := sourceSeen[key]; dup {
			continue
		}
		sourceSeen[key] = struct{}{}

		tgt, ok := targetByKey[key]
		if !ok {
			report.SourceOnly++
			report.Comparisons = append(report.Comparisons, ItemComparison{Key: key, Outcome: OutcomeSourceOnly, Source: src})
			continue
		}
		matchedTargets[key] = struct{}{}

		outcome := OutcomeFound
		if sizeSuspect(src.Size, tgt.Size, thresholdRatio) {
			outcome = OutcomeSizeIssue
			report.SizeIssues++
		} else {
			report.Found++
		}
		report.Comparisons = append(report.Comparisons, ItemComparison{Key: key, Outcome: outcome, Source: src, Target: tgt})
	}

	for _, key := range targetOrder {
		if _, matched := matchedTargets[key]; matched {
			continue
		}
		report.TargetOnly++
		report.Comparisons = append(report.Comparisons, ItemComparison{Key: key, Outcome: OutcomeTargetOnly, Target: targetByKey[key]})
	}

	report.SourceAvgVersions = averageVersions(source)
	report.TargetAvgVersions = averageVersions(target)
	report.CompletenessPercent = completeness(report.Found, report.SizeIssues, report.SourceOnly)

	return report
}

func sizeSuspect(sourceSize, targetSize int64, thresholdRatio float64) bool {
	if targetSize == 0 && sourceSize > 0 {
		return true
	}
	return float64(targetSize) < float64(sourceSize)*thresholdRatio
}

// completeness is Found/(Found+SourceOnly)*100. Only an empty source set is
// vacuously complete; a source whose every match is a size issue scores 0,
// not 100.
func completeness(found, sizeIssues, sourceOnly int) float64 {
	if found+sizeIssues+sourceOnly == 0 {
		return 100
	}
	denominator := found + sourceOnly
	if denominator == 0 {
		return 0
	}
	return float64(found) / float64(denominator) * 100
}

func averageVersions(items []RemoteItem) float64 {
	if len(items) == 0 {
		return 0
	}
	var total int
	for _, item := range items {
		total += item.VersionCount
	}
	return float64(total) / float64(len(items))
}
