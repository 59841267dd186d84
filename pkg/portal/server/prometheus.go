package server

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusHandler struct {
	App              *PortalApplication
	EventsOut        *prometheus.CounterVec
	PendingEventCnt  prometheus.GaugeFunc
	ListenerCnt      prometheus.GaugeFunc
	ApprovalQueueCnt prometheus.GaugeFunc
}

var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "portal_http_duration_seconds",
		Help: "Duration of HTTP requests.",
	}, []string{"path"})
)

func PrometheusHttpMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := mux.CurrentRoute(r)
		path, _ := route.GetPathTemplate()
		timer := prometheus.NewTimer(httpDuration.WithLabelValues(path))
		next.ServeHTTP(w, r)
		timer.ObserveDuration()
	})
}

func (pa *PortalApplication) InitializePrometheus() {
	prometheusHandler := PrometheusHandler{
		App: pa,
		EventsOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "portal",
				Subsystem: "events",
				Name:      "events_out",
				Help:      "Events fanned out to listener logs",
			},
			[]string{"action", "entity"},
		),
		PendingEventCnt: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "portal",
				Subsystem: "events",
				Name:      "pending_event_cnt",
				Help:      "Number of undelivered events across all listener logs",
			},
			func() float64 {
				return float64(pa.Provider.PendingEventCount())
			}),
		ListenerCnt: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "portal",
				Subsystem: "events",
				Name:      "listener_cnt",
				Help:      "Number of registered webhook listeners",
			},
			func() float64 {
				return float64(len(pa.Provider.GetListeners()))
			}),
		ApprovalQueueCnt: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "portal",
				Subsystem: "subscriptions",
				Name:      "approval_queue_cnt",
				Help:      "Number of subscriptions awaiting approval",
			},
			func() float64 {
				pending, err := pa.Provider.GetPendingSubscriptions()
				if err != nil {
					return 0
				}
				return float64(len(pending))
			}),
	}
	registerCollector(prometheusHandler.EventsOut)
	pa.Bus.SetEventCounter(prometheusHandler.EventsOut)
	registerCollector(prometheusHandler.PendingEventCnt)
	registerCollector(prometheusHandler.ListenerCnt)
	registerCollector(prometheusHandler.ApprovalQueueCnt)

	pa.Stats = &prometheusHandler
}

func registerCollector(collector prometheus.Collector) {
	err := prometheus.Register(collector)
	if err != nil {
		log.Println("WARNING: instrumentation error:" + err.Error())
	}
}
