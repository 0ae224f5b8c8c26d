// Package ingest turns inbound agent reports into Pose Store updates.
package ingest

import (
	"encoding/json"
	"strings"

	"collision-hub/internal/apperr"
	"collision-hub/internal/interfaces"
	"collision-hub/internal/metrics"
	"collision-hub/internal/store"
	"collision-hub/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// ErrorNotice is published when an inbound MQTT message is rejected.
type ErrorNotice struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Topic   string `json:"topic"`
}

type Handler struct {
	store      *store.PoseStore
	publisher  interfaces.MessagePublisher
	errorTopic string
	metrics    *metrics.Recorder
}

// NewHandler creates an ingestion handler. publisher may be nil, in which
// case rejected MQTT messages are only logged.
func NewHandler(s *store.PoseStore, publisher interfaces.MessagePublisher, errorTopic string, rec *metrics.Recorder) *Handler {
	return &Handler{
		store:      s,
		publisher:  publisher,
		errorTopic: errorTopic,
		metrics:    rec,
	}
}

// Ingest decodes and applies one report. It reports whether the store
// accepted it; a stale report is not an error.
func (h *Handler) Ingest(payload []byte) (bool, error) {
	r, err := DecodeReport(payload)
	if err != nil {
		h.metrics.IncReport(metrics.ReportRejected)
		return false, err
	}
	return h.store.Update(r), nil
}

// HandleReport is the MQTT callback for fleet/+/report.
func (h *Handler) HandleReport(client mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	log := utils.Logger.WithField("topic", topic)

	r, err := DecodeReport(msg.Payload())
	if err == nil {
		if topicID := deviceFromTopic(topic); topicID != "" && topicID != r.DeviceID {
			err = apperr.NewIncorrectInput("device_id " + r.DeviceID + " does not match topic")
		}
	}
	if err != nil {
		h.metrics.IncReport(metrics.ReportRejected)
		log.WithError(err).Warn("Rejected report")
		h.publishError(topic, err)
		return
	}

	if applied := h.store.Update(r); applied {
		log.WithFields(logrus.Fields{
			"device_id": r.DeviceID,
			"timestamp": r.Timestamp,
		}).Trace("Report applied")
	}
}

func (h *Handler) publishError(topic string, err error) {
	if h.publisher == nil || h.errorTopic == "" {
		return
	}
	notice := ErrorNotice{
		Code:    apperr.CodeOf(err),
		Message: err.Error(),
		Topic:   topic,
	}
	payload, _ := json.Marshal(notice)
	if pubErr := h.publisher.Publish(h.errorTopic, 0, false, payload); pubErr != nil {
		utils.Logger.WithError(pubErr).Warn("Failed to publish error notice")
	}
}

// deviceFromTopic extracts <id> from <prefix>/<id>/report.
func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[len(parts)-1] != "report" {
		return ""
	}
	return parts[len(parts)-2]
}
