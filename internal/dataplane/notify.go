package dataplane

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WorkerNotifier fans configuration changes out to workers on their
// derived loopback ports. Delivery is best-effort: an unreachable
// worker reconciles on its next poll.
type WorkerNotifier struct {
	portBase   int
	httpClient *http.Client
}

func NewWorkerNotifier(portBase int) *WorkerNotifier {
	return &WorkerNotifier{
		portBase:   portBase,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify posts to one worker's control surface. The returned error
// means the worker could not be reached or rejected the call.
func (n *WorkerNotifier) Notify(botID int, path string, body []byte) error {
	endpoint := fmt.Sprintf("http://127.0.0.1:%d%s", n.portBase+botID, path)

	var resp *http.Response
	var err error
	if body != nil {
		resp, err = n.httpClient.Post(endpoint, "application/json", bytes.NewReader(body))
	} else {
		resp, err = n.httpClient.Post(endpoint, "application/json", nil)
	}
	if err != nil {
		return fmt.Errorf("notify worker %d: %w", botID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify worker %d: %s: status %d", botID, path, resp.StatusCode)
	}
	return nil
}

// Broadcast posts to every listed worker, logging failures and moving
// on. Used for preset refresh fan-out.
func (n *WorkerNotifier) Broadcast(botIDs []int, path string) {
	for _, id := range botIDs {
		if err := n.Notify(id, path, nil); err != nil {
			log.Printf("dataplane: %v", err)
		}
	}
}
