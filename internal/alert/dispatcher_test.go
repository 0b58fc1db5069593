package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusguard-backend/internal/model"
	"focusguard-backend/internal/usage"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func sec(n int) time.Time { return epoch.Add(time.Duration(n) * time.Second) }

func feed(tr *usage.Tracker, d *Dispatcher, ts time.Time, near bool) *Alert {
	upd := tr.Observe(ts, near, 0.8)
	return d.Evaluate(model.EventPhoneUsage, upd.Window, upd.Severity, ts)
}

func TestDispatcher_OneAlertPerBand(t *testing.T) {
	tr := usage.NewTracker(usage.PhonePolicy(2*time.Second, 3*time.Second))
	d := NewDispatcher()

	fired := map[int]*Alert{}
	for i := 0; i <= 70; i++ {
		if a := feed(tr, d, sec(i), true); a != nil {
			fired[i] = a
		}
	}

	require.Len(t, fired, 3)
	assert.Equal(t, usage.SeverityLow, fired[10].Severity)
	assert.Equal(t, usage.SeverityMedium, fired[15].Severity)
	assert.Equal(t, usage.SeverityHigh, fired[60].Severity)
	assert.Equal(t, 60*time.Second, fired[60].Duration)
	assert.Equal(t, "Phone usage detected! Please focus on your work.", fired[10].Message)
	assert.True(t, fired[10].PlaySound)
	assert.Equal(t, sec(15), fired[15].At)
}

func TestDispatcher_SkippedBandsFireHighestOnce(t *testing.T) {
	tr := usage.NewTracker(usage.PhonePolicy(10*time.Second, 3*time.Second))
	d := NewDispatcher()

	assert.Nil(t, feed(tr, d, sec(0), true))
	assert.Nil(t, feed(tr, d, sec(9), true))

	a := feed(tr, d, sec(16), true)
	require.NotNil(t, a)
	assert.Equal(t, usage.SeverityMedium, a.Severity)

	assert.Nil(t, feed(tr, d, sec(17), true))
	assert.Nil(t, feed(tr, d, sec(18), true))
}

func TestDispatcher_NewWindowRearms(t *testing.T) {
	tr := usage.NewTracker(usage.PhonePolicy(2*time.Second, 3*time.Second))
	d := NewDispatcher()

	var count int
	for i := 0; i <= 11; i++ {
		if feed(tr, d, sec(i), true) != nil {
			count++
		}
	}
	assert.Equal(t, 1, count)

	for i := 20; i <= 31; i++ {
		if feed(tr, d, sec(i), true) != nil {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestDispatcher_NoWindow(t *testing.T) {
	d := NewDispatcher()
	assert.Nil(t, d.Evaluate(model.EventPhoneUsage, nil, usage.SeverityHigh, epoch))
	assert.Nil(t, d.Evaluate(model.EventPhoneUsage, &usage.Window{}, usage.SeverityNone, epoch))
}

func TestScenarioA_SustainedUsage(t *testing.T) {
	tr := usage.NewTracker(usage.PhonePolicy(2*time.Second, 3*time.Second))
	d := NewDispatcher()

	var alerts []*Alert
	for i := 0; i <= 12; i++ {
		if a := feed(tr, d, sec(i), true); a != nil {
			alerts = append(alerts, a)
		}
	}
	require.Len(t, alerts, 1)
	assert.Equal(t, usage.SeverityLow, alerts[0].Severity)
	assert.Equal(t, sec(10), alerts[0].At)

	closed := tr.Expire(sec(15))
	require.NotNil(t, closed)
	assert.True(t, closed.Reportable)
	assert.Equal(t, 12, closed.DurationSeconds())
	assert.Equal(t, model.SeverityLow, closed.Severity.Label())
}

func TestScenarioB_BriefGapKeepsWindow(t *testing.T) {
	tr := usage.NewTracker(usage.PhonePolicy(2*time.Second, 3*time.Second))
	d := NewDispatcher()

	var alerts []*Alert
	script := func(from, to int, near bool) {
		for i := from; i <= to; i++ {
			if a := feed(tr, d, sec(i), near); a != nil {
				alerts = append(alerts, a)
			}
		}
	}
	script(0, 5, true)
	upd := tr.Observe(epoch.Add(5500*time.Millisecond), false, 0)
	assert.Nil(t, upd.Closed)
	script(6, 16, true)

	require.Len(t, alerts, 2)
	assert.Equal(t, usage.SeverityMedium, alerts[1].Severity)
	assert.Equal(t, sec(15), alerts[1].At)
	assert.Equal(t, 15*time.Second, alerts[1].Duration)
	assert.Equal(t, sec(0), tr.Window().StartedAt)
}

func TestScenarioC_ShortUsageDiscarded(t *testing.T) {
	tr := usage.NewTracker(usage.PhonePolicy(2*time.Second, 3*time.Second))
	d := NewDispatcher()

	for i := 0; i <= 2; i++ {
		assert.Nil(t, feed(tr, d, sec(i), true))
	}
	for i := 3; i <= 6; i++ {
		upd := tr.Observe(sec(i), false, 0)
		if upd.Closed != nil {
			assert.False(t, upd.Closed.Reportable)
		}
	}
	assert.Nil(t, tr.Window())
}
