package dialogue

import (
	"fmt"
	"strings"

	"github.com/spec-kit/maintenance-voice/internal/domain"
)

const (
	// ApologyReply is returned when a turn fails after classification.
	ApologyReply = "I'm having trouble processing your request. Please try again."
	// DeadlineReply is returned when a turn runs out of time before a reply was drafted.
	DeadlineReply = "I'm sorry, this is taking longer than expected. Please try again in a moment."
	// EmptyUtteranceReply answers a turn with nothing to classify.
	EmptyUtteranceReply = "I didn't catch that. Could you please say it again?"

	askDescriptionReply = "I'd be happy to help you create a maintenance request. " +
		"Could you please describe the issue you're experiencing?"
	askTitleReply = "Thanks for the details. Could you give me a short title for this issue, " +
		"for example \"leaking kitchen sink\"?"
	emergencyFollowupReply = "I understand this is an emergency. Please describe the situation so I can help immediately."
	ticketNotFoundReply    = "I couldn't find that request. Could you provide the ticket number?"
	noTicketsReply         = "You don't have any maintenance requests at the moment."
	generalInquiryReply    = "I'm your maintenance assistant. " +
		"I can help you report maintenance issues, check the status of your requests, " +
		"or provide information about our services. How can I assist you today?"
	unknownIntentReply = "I'm not sure I understood that. Could you please rephrase? " +
		"You can report maintenance issues, check status, or list your requests."

	listedTicketLimit = 3
)

func spoken(v string) string {
	return strings.ReplaceAll(strings.ToLower(v), "_", " ")
}

func createdReply(t *domain.Ticket) string {
	return fmt.Sprintf("I've created your maintenance request successfully. "+
		"Ticket number %d for %s has been submitted with %s priority. "+
		"You'll be notified when a technician is assigned. Is there anything else I can help you with?",
		t.ID, spoken(string(t.Category)), spoken(string(t.Priority)))
}

func emergencyCreatedReply(t *domain.Ticket) string {
	return fmt.Sprintf("I've marked this as an emergency. "+
		"Ticket number %d for %s has been created with %s priority. "+
		"Our emergency team has been notified and will respond immediately. "+
		"If this is life-threatening, please call 911. Stay safe!",
		t.ID, spoken(string(t.Category)), spoken(string(t.Priority)))
}

func statusReply(t *domain.Ticket) string {
	assignment := "We're working on assigning a technician."
	if t.IsAssigned() {
		assignment = "A technician has been assigned and will contact you soon."
	}
	return fmt.Sprintf("Your request #%d for %s is currently %s. It was created on %s. %s",
		t.ID, t.Title, spoken(string(t.Status)), t.CreatedAt.Format("January 2, 2006"), assignment)
}

// listReply names at most three tickets, newest first as given.
func listReply(tickets []domain.Ticket) string {
	if len(tickets) == 0 {
		return noTicketsReply
	}

	var b strings.Builder
	plural := ""
	if len(tickets) > 1 {
		plural = "s"
	}
	fmt.Fprintf(&b, "You have %d maintenance request%s. ", len(tickets), plural)

	for i := 0; i < len(tickets) && i < listedTicketLimit; i++ {
		t := tickets[i]
		fmt.Fprintf(&b, "Request #%d for %s is %s. ", t.ID, t.Title, spoken(string(t.Status)))
	}

	if extra := len(tickets) - listedTicketLimit; extra > 0 {
		fmt.Fprintf(&b, "And %d more.", extra)
		return b.String()
	}
	b.WriteString("Would you like details on any specific request?")
	return b.String()
}

// followupQuestion asks for whichever required field the draft still lacks.
func followupQuestion(d domain.TicketDraft) string {
	if strings.TrimSpace(d.Description) == "" {
		return askDescriptionReply
	}
	return askTitleReply
}

// Summarize renders the prior context for the intent backend. It is empty
// when there is no prior context.
func Summarize(c *domain.ConversationContext) string {
	if c == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("Previous conversation context:\n")
	if c.LastIntent != "" {
		fmt.Fprintf(&b, "Last intent: %s\n", c.LastIntent)
	}
	if p := c.PartialRequest; p != nil {
		b.WriteString("Partial request details:\n")
		if p.Title != "" {
			fmt.Fprintf(&b, "- Title: %s\n", p.Title)
		}
		if p.Description != "" {
			fmt.Fprintf(&b, "- Description: %s\n", p.Description)
		}
	}
	return b.String()
}
