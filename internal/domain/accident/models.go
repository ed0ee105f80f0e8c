package accident

import (
	"encoding/json"
	"time"
)

// AccidentClassID is the label the accident detector emits for a crash.
const AccidentClassID = 0

type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Width() int  { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }

type Detection struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

type FrameLabelSet struct {
	FrameIndex int   `json:"frame_index"`
	ClassIDs   []int `json:"class_ids"`
}

type Result string

const (
	ResultDetected    Result = "Accident Detected"
	ResultNotDetected Result = "No Accident Detected"
)

type Severity string

const (
	SeverityMinor    Severity = "Minor"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
)

// Severity classifier labels.
const (
	SeverityLabelSevere   = 0
	SeverityLabelMinor    = 1
	SeverityLabelModerate = 2
)

// FallbackSeverityLabel is reported when no crop yields a severity label.
const FallbackSeverityLabel = SeverityLabelModerate

var severityLabels = map[int]Severity{
	SeverityLabelSevere:   SeveritySevere,
	SeverityLabelMinor:    SeverityMinor,
	SeverityLabelModerate: SeverityModerate,
}

// SeverityFromLabel maps a classifier label, unknown labels fall back to Moderate.
func SeverityFromLabel(label int) Severity {
	if s, ok := severityLabels[label]; ok {
		return s
	}
	return SeverityModerate
}

// Rank orders severities for listing: Severe > Moderate > Minor > anything else.
func (s Severity) Rank() int {
	switch s {
	case SeveritySevere:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

type Record struct {
	ID               string    `json:"_id"`
	Timestamp        time.Time `json:"timestamp"`
	Result           Result    `json:"result"`
	Severity         *Severity `json:"severity,omitempty"`
	Entities         []Entity  `json:"entities"`
	CollageReference *string   `json:"filename,omitempty"`
	ProcessingTime   *float64  `json:"processing_time,omitempty"`
}

// Verdict is the outcome of one accident check, before persistence.
type Verdict struct {
	Result           Result
	Severity         Severity
	Entities         []Entity
	CollageReference string
	ProcessingTime   float64
}

// Response is the payload returned by the accident check endpoint.
type Response struct {
	Result         Result    `json:"result"`
	Severity       *Severity `json:"severity,omitempty"`
	Entities       []Entity  `json:"entities"`
	Filename       string    `json:"filename,omitempty"`
	ID             string    `json:"_id,omitempty"`
	ProcessingTime *float64  `json:"processing_time,omitempty"`
}

// MarshalJSON writes severity and entities only for detected accidents. A
// detected record without entities carries an empty list.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	severity, entities := verdictFields(r.Result, r.Severity, r.Entities)
	return json.Marshal(struct {
		plain
		Severity *Severity `json:"severity,omitempty"`
		Entities *[]Entity `json:"entities,omitempty"`
	}{plain(r), severity, entities})
}

func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	severity, entities := verdictFields(r.Result, r.Severity, r.Entities)
	return json.Marshal(struct {
		plain
		Severity *Severity `json:"severity,omitempty"`
		Entities *[]Entity `json:"entities,omitempty"`
	}{plain(r), severity, entities})
}

func verdictFields(result Result, severity *Severity, entities []Entity) (*Severity, *[]Entity) {
	if result != ResultDetected {
		return nil, nil
	}
	if entities == nil {
		entities = []Entity{}
	}
	return severity, &entities
}

type PlateStatus string

const (
	PlateStatusSuccess     PlateStatus = "success"
	PlateStatusNoDetection PlateStatus = "no_detection"
	PlateStatusError       PlateStatus = "error"
)

// PlateResponse is the payload returned by the plate-only endpoint.
type PlateResponse struct {
	LicensePlates   []string    `json:"license_plates"`
	Status          PlateStatus `json:"status"`
	Timestamp       time.Time   `json:"timestamp"`
	DetectionMethod string      `json:"detection_method"`
	Error           string      `json:"error,omitempty"`
}
