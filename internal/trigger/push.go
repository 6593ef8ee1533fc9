package trigger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

const maxPushBody = 1 << 20

// PushEnvelope is the body of a Pub/Sub push delivery. Data arrives base64
// encoded and is decoded by encoding/json.
type PushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PushHandler accepts push deliveries for one kind. It answers 204 when the
// handler succeeds, which acknowledges the message, and 500 when it fails,
// which asks the sender to redeliver.
func PushHandler(d *Dispatcher, kind Kind, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var env PushEnvelope
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody)).Decode(&env); err != nil {
			logger.Warn("invalid push envelope", "kind", kind, "error", err)
			http.Error(w, "Invalid push envelope", http.StatusBadRequest)
			return
		}

		ev := Event{Kind: kind, Payload: env.Message.Data, MessageID: env.Message.MessageID}
		var ref struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(env.Message.Data, &ref) == nil {
			ev.ID = ref.ID
		}

		if err := d.Dispatch(r.Context(), ev); err != nil {
			logger.Error("push handler failed",
				"kind", kind,
				"message_id", ev.MessageID,
				"subscription", env.Subscription,
				"error", err,
			)
			status := http.StatusInternalServerError
			if errors.Is(err, ErrNoHandler) {
				status = http.StatusNotFound
			}
			http.Error(w, http.StatusText(status), status)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
