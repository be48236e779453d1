// Package publish sends completed analysis reports to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ayusman/romscope/internal/rom"
)

// Message is a report encoded for a message broker.
type Message struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

// Envelope is the JSON payload of a published report.
type Envelope struct {
	AnalysisID string      `json:"analysis_id"`
	VideoPath  string      `json:"video_path"`
	Report     *rom.Report `json:"report"`
}

// Publisher delivers reports. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// NewMessage encodes env keyed by its analysis ID.
func NewMessage(env Envelope) (Message, error) {
	if env.AnalysisID == "" {
		return Message{}, fmt.Errorf("envelope has no analysis id")
	}
	if env.Report == nil {
		return Message{}, fmt.Errorf("envelope %s has no report", env.AnalysisID)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return Message{}, fmt.Errorf("failed to serialize report: %w", err)
	}

	return Message{
		Key:   env.AnalysisID,
		Value: payload,
		Headers: map[string]string{
			"outcome":   string(env.Report.Outcome),
			"valid":     strconv.FormatBool(env.Report.Valid),
			"cancelled": strconv.FormatBool(env.Report.Cancelled),
		},
	}, nil
}

// Nop discards every report.
type Nop struct{}

func (Nop) Publish(ctx context.Context, env Envelope) error { return nil }

func (Nop) Close() error { return nil }
