package services

// Test doubles shared across the service tests.

type notifierCall struct {
	RecipientID int64
	Type        string
	Title       string
	Message     string
	Payload     map[string]any
}

// captureNotifier records notifications on a channel so tests can assert on
// them even though the services fire notifications from goroutines.
type captureNotifier struct {
	calls chan notifierCall
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{calls: make(chan notifierCall, 8)}
}

func (n *captureNotifier) CreateAsync(recipientID int64, notifType, title, message string, payload map[string]any) {
	n.calls <- notifierCall{
		RecipientID: recipientID,
		Type:        notifType,
		Title:       title,
		Message:     message,
		Payload:     payload,
	}
}

// nopNotifier drops notifications; for tests that only care about the
// financial state.
type nopNotifier struct{}

func (nopNotifier) CreateAsync(int64, string, string, string, map[string]any) {}
