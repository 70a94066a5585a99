package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/studiocloud/mailverify/batch"
	"github.com/studiocloud/mailverify/internal/csvrecords"
	"github.com/studiocloud/mailverify/internal/logger"
)

// Lines of the bulk ndjson stream.
type (
	progressLine struct {
		Type            string   `json:"type"`
		Progress        float64  `json:"progress"`
		Processed       int      `json:"processed"`
		Total           int      `json:"total"`
		Processing      bool     `json:"processing"`
		OriginalHeaders []string `json:"originalHeaders"`
	}
	completeLine struct {
		Type            string           `json:"type"`
		Processing      bool             `json:"processing"`
		TotalProcessed  int              `json:"totalProcessed"`
		Results         []map[string]any `json:"results"`
		OriginalHeaders []string         `json:"originalHeaders"`
	}
	errorLine struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	keepaliveLine struct {
		Type string `json:"type"`
	}
)

const maskedBulkError = "Failed to process CSV file"

// BulkValidateHandler handles POST /api/validate/bulk. It takes a multipart
// CSV upload in the "file" field and streams newline-delimited JSON:
// progress lines after each group, keepalive lines while idle, then one
// complete or error line.
func BulkValidateHandler(runner BatchRunner, opts Options) http.HandlerFunc {
	opts = opts.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		r.Body = http.MaxBytesReader(w, r.Body, opts.MaxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondJSON(w, http.StatusRequestEntityTooLarge, errorLine{Type: "error", Error: "File too large"})
				return
			}
			respondJSON(w, http.StatusBadRequest, errorLine{Type: "error", Error: "CSV file is required"})
			return
		}
		defer file.Close()

		if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
			respondJSON(w, http.StatusBadRequest, errorLine{Type: "error", Error: "Only CSV files are allowed"})
			return
		}

		headers, rows, err := csvrecords.Read(file)
		if err == nil && len(rows) == 0 {
			err = errors.New("CSV file is empty")
		}
		if err != nil {
			log.Warn().Err(err).Str("file", header.Filename).Msg("rejecting bulk upload")
			respondJSON(w, http.StatusInternalServerError, errorLine{Type: "error", Error: bulkErrorText(err, opts)})
			return
		}
		log.Info().Str("file", header.Filename).Int("records", len(rows)).Msg("bulk validation started")

		// The stream can outlive the server's write timeout.
		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		enc := json.NewEncoder(w)
		emit := func(line any) bool {
			if err := enc.Encode(line); err != nil {
				log.Debug().Err(err).Msg("bulk stream write failed")
				return false
			}
			_ = rc.Flush()
			return true
		}

		keepalive := time.NewTicker(opts.KeepaliveInterval)
		defer keepalive.Stop()

		events := runner.Run(r.Context(), rows, headers)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !emit(eventLine(ev, opts)) {
					return
				}
				if ev.Type == batch.EventError {
					log.Warn().Err(ev.Err).Msg("bulk validation failed")
				}
			case <-keepalive.C:
				if !emit(keepaliveLine{Type: "keepalive"}) {
					return
				}
			}
		}
	}
}

func eventLine(ev batch.Event, opts Options) any {
	switch ev.Type {
	case batch.EventProgress:
		return progressLine{
			Type:            "progress",
			Progress:        ev.Progress.Percent(),
			Processed:       ev.Progress.Processed,
			Total:           ev.Progress.Total,
			Processing:      true,
			OriginalHeaders: ev.Progress.Headers,
		}
	case batch.EventComplete:
		results := make([]map[string]any, len(ev.Records))
		for i, rec := range ev.Records {
			results[i] = rec.Map()
		}
		return completeLine{
			Type:            "complete",
			TotalProcessed:  len(ev.Records),
			Results:         results,
			OriginalHeaders: ev.Headers,
		}
	default:
		return errorLine{Type: "error", Error: bulkErrorText(ev.Err, opts)}
	}
}

func bulkErrorText(err error, opts Options) string {
	if opts.Production || err == nil {
		return maskedBulkError
	}
	return err.Error()
}
