package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"menu-hand/models"
)

// DiscordNotifier meldet neue Review-Anfragen an einen Discord-Webhook.
// Die Zustellung läuft fire-and-forget in einer eigenen Goroutine; ein
// Fehlschlag wird nur geloggt, der Datensatz ist zu dem Zeitpunkt bereits
// persistiert und über die API auffindbar.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewDiscordNotifier erstellt einen Notifier für die gegebene Webhook-URL.
func NewDiscordNotifier(webhookURL string, logger *zap.Logger) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type webhookPayload struct {
	Embeds []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Fields      []webhookField `json:"fields"`
}

type webhookField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Notify schickt die Anfrage asynchron raus.
func (n *DiscordNotifier) Notify(s *models.ConfidenceSuggestion) {
	go n.send(s)
}

func (n *DiscordNotifier) send(s *models.ConfidenceSuggestion) {
	candidates, err := s.RankedCandidates()
	if err != nil {
		n.logger.Error("Kandidatenliste nicht lesbar", zap.Error(err))
		return
	}

	var lines []string
	for i, c := range candidates {
		lines = append(lines, fmt.Sprintf("%d. `%s` (Score %d)", i+1, c.Name, c.Score))
	}

	payload := webhookPayload{Embeds: []webhookEmbed{{
		Title:       "Unbekanntes Gericht wartet auf Review",
		Description: fmt.Sprintf("Feed-Titel: `%s`", s.DishAlias),
		Fields: []webhookField{
			{Name: "Occurrence", Value: s.OccurrenceID.String()},
			{Name: "Kandidaten", Value: strings.Join(lines, "\n")},
		},
	}}}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("Webhook-Payload nicht serialisierbar", zap.Error(err))
		return
	}

	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		n.logger.Error("Webhook-Zustellung fehlgeschlagen", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Error("Webhook abgelehnt", zap.Int("status", resp.StatusCode))
	}
}

// NopNotifier verwirft alle Benachrichtigungen. Wird verwendet, wenn kein
// Webhook konfiguriert ist.
type NopNotifier struct{}

// Notify tut nichts.
func (NopNotifier) Notify(*models.ConfidenceSuggestion) {}
