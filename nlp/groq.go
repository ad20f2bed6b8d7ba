package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
	"bitbucket.org/mmdatafocus/finbot_backend/utils"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "llama-3.3-70b-versatile"
)

const intentionSystemPrompt = `Eres un clasificador de intenciones para una app de finanzas personales llamada FinanzApp.

Tu única tarea es clasificar el mensaje del usuario en una de estas categorías:

1. "transaction" → El usuario quiere registrar un gasto o ingreso. Ejemplos: "Gasté 5000 en supermercado", "Recibí mi sueldo", "Uber 3500", "Compré zapatillas por 45000", "Pagué 12000 en arriendo"
2. "greeting" → El usuario saluda o hace conversación casual. Ejemplos: "Hola", "Buenos días", "Qué onda", "Hey", "Hola amigo"
3. "help" → El usuario pide ayuda o no sabe cómo usar la app. Ejemplos: "Ayuda", "Cómo uso esto", "Qué puedo hacer", "Help", "Opciones"
4. "balance" → El usuario quiere ver su balance o un resumen. Ejemplos: "Cuánto tengo", "Mi balance", "Resumen", "Estado de cuenta", "Cuánto me queda"
5. "unknown" → No encaja en ninguna categoría anterior.

Responde SOLO con un JSON válido, sin markdown, sin explicaciones:
{"intention": "categoría"}`

const extractionSystemPrompt = `Eres un clasificador de transacciones financieras.
Responde SOLO con un JSON válido, sin markdown, sin explicaciones.

Formato exacto:
{"type": "expense" o "income", "category": "categoría", "amount": número o null}

Categorías válidas para gastos: Alimentación, Transporte, Entretenimiento, Salud, Servicios, Compras, Otros
Categorías válidas para ingresos: Salario, Freelance, Inversiones, Otros

Ejemplos:
"Gasté 5000 en supermercado" → {"type":"expense","category":"Alimentación","amount":5000}
"Recibí mi sueldo de 500000" → {"type":"income","category":"Salario","amount":500000}
"Uber a casa 3500" → {"type":"expense","category":"Transporte","amount":3500}
"Compré zapatillas en 45000" → {"type":"expense","category":"Compras","amount":45000}`

var fenceRe = regexp.MustCompile("```json\n?|\n?```")

// GroqClassifier calls an OpenAI-compatible chat-completions endpoint.
type GroqClassifier struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewGroqClassifier() *GroqClassifier {
	baseURL := os.Getenv("GROQ_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &GroqClassifier{
		baseURL:    baseURL,
		apiKey:     os.Getenv("GROQ_API_KEY"),
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete runs one chat completion and returns the raw content with any
// markdown fences stripped.
func (g *GroqClassifier) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("groq: status %d: %s", resp.StatusCode, string(payload))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("groq: empty choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	return strings.TrimSpace(fenceRe.ReplaceAllString(content, "")), nil
}

func (g *GroqClassifier) DetectIntention(ctx context.Context, message string) Intention {
	logger := config.GetLogger()
	from, _ := utils.GetFromPhoneFromContext(ctx)

	content, err := g.complete(ctx, intentionSystemPrompt, message, 50)
	if err != nil {
		config.LogError(logger, "nlp", "DetectIntention", "complete", map[string]string{"from": from, "message": message}, err)
		return IntentionUnknown
	}

	var result struct {
		Intention string `json:"intention"`
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		config.LogError(logger, "nlp", "DetectIntention", "json.Unmarshal", map[string]string{"from": from, "content": content}, err)
		return IntentionUnknown
	}

	switch Intention(result.Intention) {
	case IntentionTransaction, IntentionGreeting, IntentionHelp, IntentionBalance:
		return Intention(result.Intention)
	default:
		return IntentionUnknown
	}
}

func (g *GroqClassifier) ExtractTransaction(ctx context.Context, description string) ExtractedTransaction {
	logger := config.GetLogger()
	from, _ := utils.GetFromPhoneFromContext(ctx)

	content, err := g.complete(ctx, extractionSystemPrompt, fmt.Sprintf("Transacción: %q", description), 100)
	if err != nil {
		config.LogError(logger, "nlp", "ExtractTransaction", "complete", map[string]string{"from": from, "description": description}, err)
		return SafeExtraction()
	}

	// The model occasionally answers with a decimal amount; amounts in the
	// ledger are whole units.
	var raw struct {
		Type     string   `json:"type"`
		Category string   `json:"category"`
		Amount   *float64 `json:"amount"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		config.LogError(logger, "nlp", "ExtractTransaction", "json.Unmarshal", map[string]string{"from": from, "content": content}, err)
		return SafeExtraction()
	}
	if raw.Type != "expense" && raw.Type != "income" {
		return SafeExtraction()
	}

	extracted := ExtractedTransaction{Kind: raw.Type, Category: raw.Category}
	if extracted.Category == "" {
		extracted.Category = "Otros"
	}
	if raw.Amount != nil && *raw.Amount > 0 {
		amount := int64(math.Round(*raw.Amount))
		extracted.Amount = &amount
	}
	return extracted
}
