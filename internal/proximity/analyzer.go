// Package proximity decides, for a single frame, whether a detected phone is being used by a detected person.
package proximity

import "math"

// Box is a detected object in pixel coordinates. X and Y are the top-left corner.
type Box struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Confidence float64 `json:"confidence"`
}

func (b Box) area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Center returns the center point of the box.
func (b Box) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Config holds the confidence and distance thresholds.
type Config struct {
	PersonConfidence   float64
	PhoneConfidence    float64
	ProximityThreshold float64
}

// DefaultConfig returns the stock thresholds: person 0.5, phone 0.4, proximity 0.3.
func DefaultConfig() Config {
	return Config{PersonConfidence: 0.5, PhoneConfidence: 0.4, ProximityThreshold: 0.3}
}

// Pair is a person/phone combination that satisfied the proximity rule.
type Pair struct {
	Person   Box
	Phone    Box
	IoU      float64
	Distance float64
}

// Result is the outcome of analyzing one frame.
type Result struct {
	PhoneInUse bool
	Best       *Pair
	Persons    []Box
	Phones     []Box
	// Near holds, per entry of Phones, whether that phone is near any person.
	Near []bool
}

// PersonCount returns the number of persons above the confidence threshold.
func (r Result) PersonCount() int { return len(r.Persons) }

// PhoneCount returns the number of phones above the confidence threshold.
func (r Result) PhoneCount() int { return len(r.Phones) }

// IoU returns the intersection-over-union of two boxes, 0 when they do not overlap.
func IoU(a, b Box) float64 {
	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(a.X+a.W, b.X+b.W)
	y2 := math.Min(a.Y+a.H, b.Y+b.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NormalizedDistance is the distance between box centers divided by the person's height.
// It is +Inf for a person box with no height.
func NormalizedDistance(person, phone Box) float64 {
	if person.H <= 0 {
		return math.Inf(1)
	}
	px, py := person.Center()
	qx, qy := phone.Center()
	return math.Hypot(px-qx, py-qy) / person.H
}

// Analyze applies the confidence filters and checks every person/phone pair.
func Analyze(cfg Config, persons, phones []Box) Result {
	res := Result{
		Persons: filter(persons, cfg.PersonConfidence),
		Phones:  filter(phones, cfg.PhoneConfidence),
	}
	res.Near = make([]bool, len(res.Phones))

	for i, phone := range res.Phones {
		for _, person := range res.Persons {
			iou := IoU(person, phone)
			dist := NormalizedDistance(person, phone)
			if iou <= 0 && dist > cfg.ProximityThreshold {
				continue
			}
			res.Near[i] = true
			res.PhoneInUse = true
			if res.Best == nil || better(person, phone, res.Best) {
				res.Best = &Pair{Person: person, Phone: phone, IoU: iou, Distance: dist}
			}
		}
	}
	return res
}

// better orders pairs by phone confidence, then person confidence.
func better(person, phone Box, cur *Pair) bool {
	if phone.Confidence != cur.Phone.Confidence {
		return phone.Confidence > cur.Phone.Confidence
	}
	return person.Confidence > cur.Person.Confidence
}

func filter(boxes []Box, min float64) []Box {
	out := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		if b.Confidence >= min {
			out = append(out, b)
		}
	}
	return out
}
