package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"github.com/susu3304/tabiwari/internal/ledger"
)

// Expense is what the model could read out of a free-form message. Zero and
// empty fields were not mentioned in the text.
type Expense struct {
	Description  string
	Total        decimal.Decimal
	Category     string
	Payer        string
	Participants []string
	Policy       ledger.Policy
	Shares       map[string]decimal.Decimal
}

// Receipt is the structured result of reading a receipt photo.
type Receipt struct {
	Description string
	Total       decimal.Decimal
	Category    string
	Date        time.Time
}

type Client struct {
	client *openai.Client
	model  string
}

func NewClient(apiKey string) *Client {
	return &Client{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
	}
}

const expensePrompt = `You extract expense details from travel chat messages.
Respond with a JSON object with these keys:
  "description": short noun phrase for what was bought, or ""
  "amount": total amount as a number, or 0 if none mentioned
  "category": one of "food", "transport", "accommodation", "activities", "shopping", "other"
  "paid_by": name of the person who paid, or "" if not mentioned
  "participants": array of names the expense is split among, [] if not mentioned
  "split_type": "even", "percent" or "amount" if the message says how to split, else ""
  "split_details": object mapping name to percentage or amount when given, else {}
Use only information present in the message. Do not invent names or amounts.`

// Expense reads one expense out of a free-form message.
func (c *Client) Expense(ctx context.Context, text string) (Expense, error) {
	body, err := c.jsonCompletion(ctx, expensePrompt, text)
	if err != nil {
		return Expense{}, err
	}
	return parseExpense(body)
}

const peoplePrompt = `You extract people's names from a chat message listing trip members.
Respond with a JSON object: {"participants": ["name", ...]}.
Keep the names exactly as written, in the order mentioned. If the message
lists no names, return {"participants": []}.`

// People reads a list of names out of a message like "Alice, Bob and Carol".
func (c *Client) People(ctx context.Context, text string) ([]string, error) {
	body, err := c.jsonCompletion(ctx, peoplePrompt, text)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Participants []string `json:"participants"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse participants: %w", err)
	}
	return payload.Participants, nil
}

const receiptPrompt = `Read this receipt and respond with a JSON object:
  "description": merchant name or a short description of the purchase
  "amount": the total paid as a number, or 0 if unreadable
  "category": one of "food", "transport", "accommodation", "activities", "shopping", "other"
  "date": purchase date as YYYY-MM-DD, or "" if unreadable`

// Receipt reads a receipt photo. The image is sent inline as a data URL.
func (c *Client) Receipt(ctx context.Context, image []byte, mimeType string) (Receipt, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: receiptPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return Receipt{}, err
	}
	if len(resp.Choices) == 0 {
		return Receipt{}, fmt.Errorf("no completion choices returned")
	}
	return parseReceipt(jsonBody(resp.Choices[0].Message.Content))
}

const answerPrompt = `You are a travel expense assistant. Answer the user's question
using the trip details and recent conversation below. Be brief and concrete.
If the answer is not in the data, say so instead of guessing.`

// Answer handles free-form questions about the current trip.
func (c *Client) Answer(ctx context.Context, question, tripContext, history string) (string, error) {
	system := answerPrompt
	if tripContext != "" {
		system += "\n\nTrip details:\n" + tripContext
	}
	if history != "" {
		system += "\n\nRecent conversation:\n" + history
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) jsonCompletion(ctx context.Context, system, user string) ([]byte, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}
	return jsonBody(resp.Choices[0].Message.Content), nil
}

// jsonBody strips the markdown code fences some models wrap JSON in.
func jsonBody(s string) []byte {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return []byte(strings.TrimSpace(s))
}

type expensePayload struct {
	Description  string                 `json:"description"`
	Amount       json.Number            `json:"amount"`
	Category     string                 `json:"category"`
	PaidBy       string                 `json:"paid_by"`
	Participants []string               `json:"participants"`
	SplitType    string                 `json:"split_type"`
	SplitDetails map[string]json.Number `json:"split_details"`
}

func parseExpense(body []byte) (Expense, error) {
	var p expensePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Expense{}, fmt.Errorf("parse expense: %w", err)
	}
	e := Expense{
		Description:  strings.TrimSpace(p.Description),
		Total:        toDecimal(p.Amount),
		Category:     strings.TrimSpace(p.Category),
		Payer:        strings.TrimSpace(p.PaidBy),
		Participants: p.Participants,
	}
	switch p.SplitType {
	case "even":
		e.Policy = ledger.PolicyEven
	case "percent", "percentage":
		e.Policy = ledger.PolicyPercent
	case "amount", "exact":
		e.Policy = ledger.PolicyAmount
	}
	if len(p.SplitDetails) > 0 {
		e.Shares = make(map[string]decimal.Decimal, len(p.SplitDetails))
		for name, n := range p.SplitDetails {
			e.Shares[name] = toDecimal(n)
		}
	}
	return e, nil
}

type receiptPayload struct {
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Category    string      `json:"category"`
	Date        string      `json:"date"`
}

func parseReceipt(body []byte) (Receipt, error) {
	var p receiptPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Receipt{}, fmt.Errorf("parse receipt: %w", err)
	}
	r := Receipt{
		Description: strings.TrimSpace(p.Description),
		Total:       toDecimal(p.Amount),
		Category:    strings.TrimSpace(p.Category),
	}
	if p.Date != "" {
		if d, err := time.Parse("2006-01-02", p.Date); err == nil {
			r.Date = d
		}
	}
	return r, nil
}

func toDecimal(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Decimal{}
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}
	}
	return d
}
