package derived

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/usemox/mox/pkg/ai"
)

const otpSystem = `You are a helpful assistant. Go through the email contents and extract the login code, who sent the code and the validity period.
You only respond with the JSON object.

The login code is a string of digits and is also named as:
- OTP
- One-Time Password
- Verification Code
- Security Code
- Login Code

The service name is the name of the company that sent the code.
The validity period is the time period in which the code is valid.

EXAMPLE:
Email: "We noticed a suspicious log-in on your OpenAI account. Enter this code: 328782. This code will expire in 1 hour."
Response: {"code": "328782", "service": "OpenAI", "validFor": "1 hour"}

If any of the fields are not present, respond with null for that field.`

var otpSchema = []byte(`{
  "type": "object",
  "properties": {
    "code": {"type": ["string", "null"]},
    "service": {"type": ["string", "null"]},
    "validFor": {"type": ["string", "null"]}
  },
  "required": ["code", "service", "validFor"]
}`)

// OTP is the extract-otp result.
type OTP struct {
	Code     *string `json:"code"`
	Service  *string `json:"service"`
	ValidFor *string `json:"validFor"`
}

// CodeDetector finds text that likely contains a one-time code.
type CodeDetector struct {
	patterns []*regexp.Regexp
}

func NewCodeDetector() *CodeDetector {
	return &CodeDetector{patterns: []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:code|otp|pin|passcode|password)[\s:\-]*(\d{4,8})\b`),
		regexp.MustCompile(`(?i)(?:verification|verify|confirm|security|2fa|two.factor|one.time)[\s\w]*[\s:\-]*(\d{4,8})\b`),
		regexp.MustCompile(`(?m)^\s*(\d{4,8})\s*$`),
		regexp.MustCompile(`(?i)(?:code)[\s:\-]*([A-Z0-9]{6,12})\b`),
	}}
}

// HasCode reports whether any pattern matches text.
func (d *CodeDetector) HasCode(text string) bool {
	for _, p := range d.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// OTPStage extracts one-time login codes.
type OTPStage struct {
	llm      ai.Service
	detector *CodeDetector
}

func NewOTPStage(llm ai.Service) *OTPStage {
	return &OTPStage{llm: llm, detector: NewCodeDetector()}
}

func (s *OTPStage) Name() string  { return "extract-otp" }
func (s *OTPStage) Priority() int { return 1 }

// Process skips the model call when the text has no code-like token.
func (s *OTPStage) Process(ctx context.Context, in Input) (json.RawMessage, error) {
	if !s.detector.HasCode(in.Text) {
		return json.Marshal(OTP{})
	}

	raw, err := s.llm.ExtractStructured(ctx, ai.StructuredRequest{
		Name:   s.Name(),
		System: otpSystem,
		Prompt: "Email Body:\n" + in.Text,
		Schema: otpSchema,
	})
	if err != nil {
		return nil, err
	}

	var otp OTP
	if err := json.Unmarshal(raw, &otp); err != nil {
		return nil, err
	}
	return json.Marshal(otp)
}
