package vote

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
)

func repeat(o Outcome, n int) []Outcome {
	out := make([]Outcome, n)
	for i := range out {
		out[i] = o
	}
	return out
}

func TestSeverityTieGoesToLowestLabel(t *testing.T) {
	var outcomes []Outcome
	outcomes = append(outcomes, repeat(Ok(1), 5)...)
	outcomes = append(outcomes, repeat(Ok(2), 5)...)
	outcomes = append(outcomes, Ok(0))

	label, fallback := Severity(outcomes)
	assert.Equal(t, 1, label)
	assert.False(t, fallback)
}

func TestSeverityCountsEveryLabelOfACrop(t *testing.T) {
	outcomes := []Outcome{Ok(0, 0), Ok(2), Ok(2), Ok(0)}

	label, _ := Severity(outcomes)
	assert.Equal(t, 0, label)
}

func TestSeverityFallback(t *testing.T) {
	outcomes := []Outcome{Ok(), Skip(errors.New("unreadable")), Ok()}

	label, fallback := Severity(outcomes)
	assert.Equal(t, accident.FallbackSeverityLabel, label)
	assert.True(t, fallback)

	label, fallback = Severity(nil)
	assert.Equal(t, accident.SeverityLabelModerate, label)
	assert.True(t, fallback)
}

func TestSeverityIgnoresSkippedCrops(t *testing.T) {
	outcomes := []Outcome{Ok(1), Skip(errors.New("inference failed")), Ok(1)}
	outcomes[1].Labels = []int{0, 0, 0}

	label, _ := Severity(outcomes)
	assert.Equal(t, 1, label)
}

func counts(perCrop ...int) []Outcome {
	out := make([]Outcome, 0, len(perCrop))
	for _, n := range perCrop {
		labels := make([]int, n)
		for i := range labels {
			labels[i] = accident.ClassCar
		}
		out = append(out, Ok(labels...))
	}
	return out
}

func TestVehicleCount(t *testing.T) {
	tests := []struct {
		name    string
		perCrop []int
		want    int
	}{
		{"exactly ninety percent single does not fire", []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 2}, 2},
		{"above ninety percent single", []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 3}, 1},
		{"all single", []int{1, 1, 1}, 1},
		{"two objects in a small minority", append(repeatInt(1, 40), 2, 2, 3, 3, 3, 3, 3, 3, 3, 3), 2},
		{"most frequent count", []int{3, 3, 4, 4, 4}, 4},
		{"most frequent count tie goes to smaller", []int{3, 3, 4, 4}, 3},
		{"nothing detected", []int{0, 0, 0}, 0},
		{"no crops", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VehicleCount(counts(tt.perCrop...)))
		})
	}
}

func TestVehicleCountTwoPercentIsStrict(t *testing.T) {
	// 1 crop of 50 with two objects is exactly 2%.
	perCrop := append(repeatInt(3, 49), 2)
	assert.Equal(t, 3, VehicleCount(counts(perCrop...)))

	// 2 of 50 exceeds it.
	perCrop = append(repeatInt(3, 48), 2, 2)
	assert.Equal(t, 2, VehicleCount(counts(perCrop...)))
}

func repeatInt(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSurvivingClassesKeepsCar(t *testing.T) {
	var outcomes []Outcome
	outcomes = append(outcomes, Ok(accident.ClassCar))
	outcomes = append(outcomes, repeat(Ok(accident.ClassTruck), 8)...)
	outcomes = append(outcomes, Ok(accident.ClassPerson))

	// car holds 10%, person 10%, truck 80%
	assert.Equal(t, []int{accident.ClassCar, accident.ClassTruck}, SurvivingClasses(outcomes))
}

func TestSurvivingClassesShareBoundary(t *testing.T) {
	outcomes := []Outcome{
		Ok(accident.ClassBus),
		Ok(accident.ClassTruck, accident.ClassTruck),
		Ok(accident.ClassTruck, accident.ClassTruck),
	}
	// bus holds exactly 20% and is kept
	assert.Equal(t, []int{accident.ClassBus, accident.ClassTruck}, SurvivingClasses(outcomes))
}

func TestObjectsSingleSurvivorIsRepeated(t *testing.T) {
	outcomes := repeat(Ok(accident.ClassCar, accident.ClassCar), 5)

	v := Objects(outcomes)
	assert.Equal(t, 2, v.Count)
	assert.Equal(t, []int{accident.ClassCar, accident.ClassCar}, v.ClassIDs)
}

func TestObjectsSingleVehicle(t *testing.T) {
	outcomes := repeat(Ok(accident.ClassTruck), 12)

	v := Objects(outcomes)
	assert.Equal(t, 1, v.Count)
	assert.Equal(t, []int{accident.ClassTruck}, v.ClassIDs)
}

func TestObjectsSeveralSurvivorsListedOnce(t *testing.T) {
	outcomes := []Outcome{
		Ok(accident.ClassTruck, accident.ClassCar),
		Ok(accident.ClassTruck, accident.ClassCar),
		Ok(accident.ClassPerson, accident.ClassPerson),
	}

	v := Objects(outcomes)
	assert.Equal(t, []int{accident.ClassPerson, accident.ClassCar, accident.ClassTruck}, v.ClassIDs)
}

func TestObjectsSingleSurvivorWithZeroCount(t *testing.T) {
	outcomes := []Outcome{Ok(), Ok(), Ok(accident.ClassBus)}

	v := Objects(outcomes)
	assert.Equal(t, 0, v.Count)
	assert.Equal(t, []int{accident.ClassBus}, v.ClassIDs)
}

func TestObjectsNothingDetected(t *testing.T) {
	v := Objects([]Outcome{Ok(), Skip(errors.New("bad crop"))})
	assert.Empty(t, v.ClassIDs)
	assert.NotNil(t, v.ClassIDs)
}
