package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/croftlab/site-weather-etl/internal/config"
	"github.com/croftlab/site-weather-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes fetched site-year series to a Kafka topic so downstream
// consumers can pick up daily weather without reading the run artifacts.
// It implements pipeline.ObservationSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.FetchConfig, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishSiteYear publishes one message carrying a full site-year series.
// The message key is the site-year key, so all years of a site land on the
// same partition in order.
func (w *Writer) PublishSiteYear(ctx context.Context, sy domain.SiteYear, obs []domain.DailyObservation) error {
	msg, err := serializeSiteYear(sy, obs)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeSiteYear marshals a site-year series into a Kafka message.
func serializeSiteYear(sy domain.SiteYear, obs []domain.DailyObservation) (kafkago.Message, error) {
	payload := seriesMessage{
		Site:         sy.Site,
		Year:         sy.Year,
		Lat:          sy.Lat,
		Lon:          sy.Lon,
		Days:         len(obs),
		Observations: make([]seriesDay, len(obs)),
	}
	for i, o := range obs {
		payload.Observations[i] = seriesDay{
			Yday:   o.Yday,
			Date:   o.Date.Format(domain.DateLayout),
			Values: o.Values,
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize series %s: %w", sy.Key(), err)
	}
	return kafkago.Message{
		Key:   []byte(sy.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "site", Value: []byte(sy.Site)},
			{Key: "year", Value: []byte(strconv.Itoa(sy.Year))},
			{Key: "days", Value: []byte(strconv.Itoa(len(obs)))},
		},
	}, nil
}

// Wire form of a published series. Identity fields are repeated in the
// value so consumers need not parse the key.
type seriesMessage struct {
	Site         string      `json:"site"`
	Year         int         `json:"year"`
	Lat          float64     `json:"lat"`
	Lon          float64     `json:"lon"`
	Days         int         `json:"days"`
	Observations []seriesDay `json:"observations"`
}

type seriesDay struct {
	Yday   int                         `json:"yday"`
	Date   string                      `json:"date"`
	Values map[domain.Variable]float64 `json:"values"`
}
