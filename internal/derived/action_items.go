package derived

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/usemox/mox/internal/actionitem/domain"
	"github.com/usemox/mox/internal/actionitem/repository"
	"github.com/usemox/mox/pkg/ai"
)

const actionItemsSystem = `You are a helpful assistant whose job is to analyze email content and extract action items.
Identify any tasks, requests, or commitments that require action from the recipient.
You only respond with the JSON object.

An action item has:
- description: a clear description of what needs to be done
- dueDate: the deadline as written in the email, or null

EXAMPLE:
Email: "Please review the attached document and provide feedback by Friday. Also, we have a meeting tomorrow at 2pm."
Response: {"actionItems": [{"description": "Review the attached document and provide feedback", "dueDate": "Friday"}, {"description": "Attend meeting", "dueDate": "tomorrow at 2pm"}]}

If no action items are found, return {"actionItems": []}.`

var actionItemsSchema = []byte(`{
  "type": "object",
  "properties": {
    "actionItems": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "description": {"type": "string"},
          "dueDate": {"type": ["string", "null"]}
        },
        "required": ["description"]
      }
    }
  },
  "required": ["actionItems"]
}`)

type extractedItem struct {
	Description string  `json:"description"`
	DueDate     *string `json:"dueDate"`
}

type actionItemsResult struct {
	ActionItems []extractedItem `json:"actionItems"`
}

// ActionItemStage extracts to-dos and stores them as ActionItem rows.
type ActionItemStage struct {
	llm  ai.Service
	repo repository.ActionItemRepository
}

func NewActionItemStage(llm ai.Service, repo repository.ActionItemRepository) *ActionItemStage {
	return &ActionItemStage{llm: llm, repo: repo}
}

func (s *ActionItemStage) Name() string  { return "extract-action-items" }
func (s *ActionItemStage) Priority() int { return 2 }

func (s *ActionItemStage) Process(ctx context.Context, in Input) (json.RawMessage, error) {
	raw, err := s.llm.ExtractStructured(ctx, ai.StructuredRequest{
		Name:   s.Name(),
		System: actionItemsSystem,
		Prompt: "Email Body:\n" + in.Text,
		Schema: actionItemsSchema,
	})
	if err != nil {
		return nil, err
	}

	var res actionItemsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}

	kept := make([]extractedItem, 0, len(res.ActionItems))
	items := make([]*domain.ActionItem, 0, len(res.ActionItems))
	for _, it := range res.ActionItems {
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			continue
		}
		if it.DueDate != nil && strings.TrimSpace(*it.DueDate) == "" {
			it.DueDate = nil
		}
		it.Description = desc
		kept = append(kept, it)
		items = append(items, &domain.ActionItem{Description: desc, DueDate: it.DueDate})
	}

	if err := s.repo.ReplaceForEmail(ctx, in.AccountID, in.EmailID, items); err != nil {
		return nil, err
	}
	return json.Marshal(actionItemsResult{ActionItems: kept})
}
