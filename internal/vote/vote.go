package vote

import (
	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
)

// Object vote thresholds, expressed as fractions.
const (
	singleObjectNum, singleObjectDen = 9, 10 // > 90% of crops show exactly one object
	twoObjectNum, twoObjectDen       = 1, 50 // > 2% of crops show exactly two objects
	classShareNum, classShareDen     = 1, 5  // a class must hold >= 20% of detections
)

// Severity returns the most frequent severity label over every crop.
// Ties go to the lowest label. When no crop produced a label the fallback
// label is returned and fallback is true.
func Severity(outcomes []Outcome) (label int, fallback bool) {
	table := NewFrequencyTable()
	for _, o := range Tallied(outcomes) {
		for _, l := range o.Labels {
			table.Add(l)
		}
	}
	if label, ok := table.Mode(); ok {
		return label, false
	}
	return accident.FallbackSeverityLabel, true
}

type ObjectVerdict struct {
	// Count is the decided number of objects involved in the incident.
	Count int
	// Surviving holds the classes that passed the share filter, ascending.
	Surviving []int
	// ClassIDs is the clip's entity-type sequence.
	ClassIDs []int
}

// VehicleCount decides how many objects the incident involves from the
// per-crop detection counts.
func VehicleCount(outcomes []Outcome) int {
	counts := NewFrequencyTable()
	for _, o := range Tallied(outcomes) {
		counts.Add(len(o.Labels))
	}

	switch {
	case counts.ShareExceeds(1, singleObjectNum, singleObjectDen):
		return 1
	case counts.ShareExceeds(2, twoObjectNum, twoObjectDen):
		return 2
	}
	count, _ := counts.Mode()
	return count
}

// SurvivingClasses keeps every class holding at least 20% of all detections,
// plus car whenever it was detected at all.
func SurvivingClasses(outcomes []Outcome) []int {
	classes := NewFrequencyTable()
	for _, o := range Tallied(outcomes) {
		for _, l := range o.Labels {
			classes.Add(l)
		}
	}

	var surviving []int
	for _, c := range classes.Keys() {
		if c == accident.ClassCar || classes.ShareAtLeast(c, classShareNum, classShareDen) {
			surviving = append(surviving, c)
		}
	}
	return surviving
}

// Objects runs the object vote. A single surviving class is repeated Count
// times (at least once); several survivors are listed once each.
func Objects(outcomes []Outcome) ObjectVerdict {
	v := ObjectVerdict{
		Count:     VehicleCount(outcomes),
		Surviving: SurvivingClasses(outcomes),
	}

	switch len(v.Surviving) {
	case 0:
		v.ClassIDs = []int{}
	case 1:
		n := max(v.Count, 1)
		v.ClassIDs = make([]int, n)
		for i := range v.ClassIDs {
			v.ClassIDs[i] = v.Surviving[0]
		}
	default:
		v.ClassIDs = append([]int(nil), v.Surviving...)
	}
	return v
}
