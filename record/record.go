// Package record turns session results into structured outcome records and
// ships them to telemetry collaborators.
package record

import (
	"context"
	"time"

	isp "github.com/tocurd/go-avrisp"
	"github.com/tocurd/go-avrisp/programmer"
)

// Record is one session outcome as published and stored.
type Record struct {
	SessionID  string            `json:"session_id"`
	Station    string            `json:"station"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMS int64             `json:"duration_ms"`
	ChipType   string            `json:"chip_type"`
	Signature  string            `json:"signature"`
	FusesRead  map[string]string `json:"fuses_read,omitempty"`
	FuseWrites map[string]string `json:"fuse_writes"`
	Flash      string            `json:"flash"`
	FlashBytes int               `json:"flash_bytes"`
	Failure    string            `json:"failure,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Passed     bool              `json:"passed"`
}

// FromResult builds the record for a session.
func FromResult(station string, r programmer.SessionResult) Record {
	rec := Record{
		SessionID:  r.ID,
		Station:    station,
		StartedAt:  r.StartedAt.UTC(),
		DurationMS: r.Duration.Milliseconds(),
		ChipType:   r.ChipType,
		Signature:  r.Signature,
		FuseWrites: map[string]string{},
		Flash:      r.Flash.String(),
		FlashBytes: r.FlashBytes,
		Detail:     r.Detail,
		Passed:     r.Passed(),
	}
	if r.Failure != isp.KindNone {
		rec.Failure = r.Failure.String()
	}
	if len(r.FusesRead) > 0 {
		rec.FusesRead = map[string]string{}
		for f, v := range r.FusesRead {
			rec.FusesRead[f.String()] = v
		}
	}
	for _, f := range isp.Fuses {
		rec.FuseWrites[f.String()] = r.FuseWrites[f].String()
	}
	return rec
}

// LogRecorder writes each record to the logger.
type LogRecorder struct {
	Station string
	Logger  isp.Logger
}

func (l LogRecorder) Record(ctx context.Context, r programmer.SessionResult) error {
	rec := FromResult(l.Station, r)
	l.Logger.Info("session record",
		"session", rec.SessionID,
		"chip", rec.ChipType,
		"signature", rec.Signature,
		"fuse_writes", rec.FuseWrites,
		"flash", rec.Flash,
		"flash_bytes", rec.FlashBytes,
		"failure", rec.Failure,
		"duration_ms", rec.DurationMS,
	)
	return nil
}
