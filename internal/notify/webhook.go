package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ppiankov/tagwatch/internal/version"
)

const (
	// EventNewerTag is sent when a newer version tag is available.
	EventNewerTag = "newer-tag"

	// EventContentDrift is sent when a running tag points to new content.
	EventContentDrift = "content-drift"
)

// Event represents a notification payload sent to webhooks.
type Event struct {
	Type           string `json:"type"`
	RunID          string `json:"run_id,omitempty"`
	Kind           string `json:"kind"`
	Namespace      string `json:"namespace"`
	Name           string `json:"name"`
	Image          string `json:"image"`
	CurrentTag     string `json:"current_tag,omitempty"`
	NewestTag      string `json:"newest_tag,omitempty"`
	Node           string `json:"node,omitempty"`
	RegistryDigest string `json:"registry_digest,omitempty"`
	ObservedDigest string `json:"observed_digest,omitempty"`
	Message        string `json:"message"`
	Timestamp      string `json:"timestamp"`
}

// Notifier sends webhook notifications. Fire-and-forget with timeout.
type Notifier struct {
	URL        string
	Events     map[string]bool
	HTTPClient *http.Client
}

// NewNotifier creates a Notifier for the given URL and event filter.
// eventTypes is a list of event types to send (e.g. "newer-tag",
// "content-drift"). An empty list means all events are sent.
func NewNotifier(url string, eventTypes []string) *Notifier {
	events := make(map[string]bool)
	for _, e := range eventTypes {
		events[e] = true
	}
	return &Notifier{
		URL:    url,
		Events: events,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Notify sends an event to the webhook. Callers log the returned error; it
// never affects the audit.
func (n *Notifier) Notify(ctx context.Context, evt Event) error {
	if n == nil || n.URL == "" {
		return nil
	}
	if len(n.Events) > 0 && !n.Events[evt.Type] {
		return nil
	}

	evt.Timestamp = time.Now().UTC().Format(time.RFC3339)

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
