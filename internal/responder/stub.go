package responder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
)

// templates are filled with the ticket title via fmt.Sprintf.
var templates = []string{
	"Thank you for reaching out regarding \"%s\". Based on your description, I've analyzed the issue and here are my recommendations:\n\n" +
		"1. First, please verify your account settings are up to date.\n" +
		"2. Try clearing your browser cache and cookies.\n" +
		"3. If the issue persists, please check if you're using the latest version of our application.\n\n" +
		"I've also created a detailed troubleshooting guide for your specific case. Our team will review this within 24 hours. Is there anything else I can help clarify?",

	"I understand you're experiencing issues with \"%s\". Let me help you resolve this:\n\n" +
		"**Immediate Steps:**\n" +
		"- Log out and log back in to refresh your session\n" +
		"- Ensure your internet connection is stable\n" +
		"- Try accessing from a different browser\n\n" +
		"**Next Steps:**\n" +
		"I've escalated this to our technical team for investigation. You should receive an update within 2-4 business hours. We apologize for any inconvenience.",

	"Thank you for contacting SupportFlow about \"%s\". I've reviewed your query and here's what I found:\n\n" +
		"This appears to be a common issue that can typically be resolved by:\n" +
		"1. Updating your profile settings\n" +
		"2. Verifying your email address\n" +
		"3. Restarting the application\n\n" +
		"I've also sent you a detailed email with step-by-step instructions. Please let me know if you need any clarification or if the issue continues.",
}

// Templates returns every response Stub can produce for title, in order.
func Templates(title string) []string {
	out := make([]string, len(templates))
	for i, tpl := range templates {
		out[i] = fmt.Sprintf(tpl, title)
	}
	return out
}

// Stub picks one of a fixed set of canned responses uniformly at random.
// The description is accepted for interface parity and ignored.
type Stub struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewStub creates a Stub. A nil src uses a randomly seeded source.
func NewStub(src rand.Source) *Stub {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Stub{rnd: rand.New(src)}
}

func (s *Stub) Name() string { return "stub" }

func (s *Stub) Generate(_ context.Context, title, _ string) (string, error) {
	s.mu.Lock()
	i := s.rnd.IntN(len(templates))
	s.mu.Unlock()
	return fmt.Sprintf(templates[i], title), nil
}
