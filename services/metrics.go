package services

import "github.com/prometheus/client_golang/prometheus"

type visitorMetrics struct {
	checkins       prometheus.Counter
	checkouts      prometheus.Counter
	insertFailures prometheus.Counter
	photoFailures  prometheus.Counter
	credFailures   prometheus.Counter
}

// newVisitorMetrics registers on reg when it is not nil.
func newVisitorMetrics(reg prometheus.Registerer) *visitorMetrics {
	m := &visitorMetrics{
		checkins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_checkins_total",
			Help: "Visitors checked in",
		}),
		checkouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_checkouts_total",
			Help: "Visitors checked out",
		}),
		insertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_insert_failures_total",
			Help: "Check-ins rejected by the record store",
		}),
		photoFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_photo_upload_failures_total",
			Help: "Photo uploads or photo patches that failed",
		}),
		credFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_credential_patch_failures_total",
			Help: "Final credential patches that failed",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.checkins, m.checkouts, m.insertFailures, m.photoFailures, m.credFailures)
	}
	return m
}
