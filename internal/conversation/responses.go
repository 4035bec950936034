package conversation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/BTreeMap/IsItStolen/internal/flow"
	"github.com/BTreeMap/IsItStolen/internal/models"
)

// InteractiveType selects how an interactive payload is rendered by the transport.
type InteractiveType string

const (
	InteractiveButton InteractiveType = "button"
	InteractiveList   InteractiveType = "list"
)

// Option is one selectable choice in an interactive message.
type Option struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Interactive describes buttons or a list attached to a reply. Transports without
// interactive support send Reply.Text instead.
type Interactive struct {
	Type       InteractiveType `json:"type"`
	Body       string          `json:"body"`
	ButtonText string          `json:"button_text,omitempty"`
	Options    []Option        `json:"options"`
}

// Reply is the message sent back to the user.
type Reply struct {
	Text        string       `json:"text"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

// Response is the outcome of routing one inbound message.
type Response struct {
	Reply Reply                    `json:"reply"`
	State models.ConversationState `json:"state"`
}

// Menu option ids, shared by the welcome buttons and the typed menu answers.
const (
	OptionCheckItem  = "check_item"
	OptionReportItem = "report_item"
	OptionContactUs  = "contact_us"
)

const (
	welcomeText = "👋 Welcome to Is It Stolen!\n\n" +
		"What would you like to do?\n" +
		"1️⃣ Check if an item is stolen\n" +
		"2️⃣ Report a stolen item\n" +
		"3️⃣ Contact us\n\n" +
		"Reply with 1, 2, or 3, or type 'cancel' to exit."
	welcomeButtonsBody = "👋 Welcome to Is It Stolen!\n\nWhat would you like to do?"
	mainMenuInvalid    = "Please choose an option:\n" +
		"1️⃣ Check if an item is stolen\n" +
		"2️⃣ Report a stolen item\n" +
		"3️⃣ Contact us\n\n" +
		"Type 'cancel' to exit."
	cancelText = "Conversation cancelled. Send any message to start again."

	checkCategoryPrompt = "🔍 Check if stolen\n\n" +
		"What type of item do you want to check?\n" +
		"Examples: bike, phone, laptop, car\n\n" +
		"Type 'cancel' to go back."
	checkCategoryConfirm = "✅ Got it, checking for: %s\n\n" +
		"Please describe the item (brand, model, color, etc.):\n" +
		"Example: Red Trek mountain bike, serial ABC123"
	invalidCategoryText = "❌ I didn't recognize that item type.\n\n" +
		"Please try again with: bike, phone, laptop, or car"
	checkLocationPrompt = "📍 Where was it last seen or stolen?\n\n" +
		"You can either:\n" +
		"• Type a location (e.g., 'Main Street, downtown')\n" +
		"• Send your current location\n" +
		"• Type 'skip' if you don't know"
	descriptionTooShortText = "❌ Please provide a more detailed description (at least 10 characters).\n\n" +
		"Include brand, model, color and any unique features."
	checkMatchesText = "🔍 Search complete!\n\n" +
		"Found %d potential match%s.\n" +
		"We'll send details in the next message.\n\n" +
		"Send any message to start a new search."
	checkNoMatchesText = "🔍 Searching for matches...\n\n" +
		"No stolen items found matching your description.\n\n" +
		"Send any message to start a new search."

	reportCategoryPrompt = "📝 Report stolen item\n\n" +
		"What type of item was stolen?\n" +
		"Examples: bike, phone, laptop, car\n\n" +
		"Type 'cancel' to go back."
	reportCategoryConfirm = "✅ Reporting stolen: %s\n\n" +
		"Please describe the item in detail:\n" +
		"Include: brand, model, color, serial number, any unique features"
	reportLocationPrompt = "📍 Where was it stolen?\n\n" +
		"You can either:\n" +
		"• Type the location\n" +
		"• Send your location\n" +
		"• Type 'unknown' if you're not sure"
	reportDatePrompt = "📅 When was it stolen?\n\n" +
		"Examples:\n" +
		"• 'today'\n" +
		"• 'yesterday'\n" +
		"• '3 days ago'\n" +
		"• '15 January 2024'\n" +
		"• 'last week'\n\n" +
		"Type 'unknown' if you're not sure"
	invalidDateText = "❌ I didn't understand that date.\n\n" +
		"Please try again with formats like:\n" +
		"• 'today' or 'yesterday'\n" +
		"• '2 days ago'\n" +
		"• '15 Jan 2024'\n\n" +
		"Or type 'unknown' if you're not sure"
	reportCompleteText = "✅ Thank you for reporting!\n\n" +
		"Your stolen item has been recorded.\n" +
		"We'll notify you if there are any matches.\n\n" +
		"Send any message to make another report."

	contactText = "📞 Contact us\n\n" +
		"Reply to this chat with your question and our team will get back to you.\n\n" +
		"Send any message to start again."
	ticketCreatedSuffix = "\n\nOur team will get back to you soon.\n\nSend any message to start again."
	flowDoneText        = "✅ Done!\n\nSend any message to start again."
	noServiceText       = "⚠️ This service is temporarily unavailable.\n\nPlease try again later."
	genericApology      = "❌ Sorry, something went wrong on our side.\n\nPlease try again later."
)

// ResponseBuilder produces every user-facing message the router sends.
type ResponseBuilder struct{}

// Welcome returns the main menu with check/report/contact buttons.
func (ResponseBuilder) Welcome() Reply {
	return Reply{
		Text: welcomeText,
		Interactive: &Interactive{
			Type: InteractiveButton,
			Body: welcomeButtonsBody,
			Options: []Option{
				{ID: OptionCheckItem, Title: "Check Item"},
				{ID: OptionReportItem, Title: "Report Item"},
				{ID: OptionContactUs, Title: "Contact us"},
			},
		},
	}
}

func (ResponseBuilder) MainMenuInvalid() Reply     { return Reply{Text: mainMenuInvalid} }
func (ResponseBuilder) Cancelled() Reply           { return Reply{Text: cancelText} }
func (ResponseBuilder) InvalidCategory() Reply     { return Reply{Text: invalidCategoryText} }
func (ResponseBuilder) DescriptionTooShort() Reply { return Reply{Text: descriptionTooShortText} }
func (ResponseBuilder) CheckLocationPrompt() Reply { return Reply{Text: checkLocationPrompt} }
func (ResponseBuilder) ReportLocation() Reply      { return Reply{Text: reportLocationPrompt} }
func (ResponseBuilder) ReportDatePrompt() Reply    { return Reply{Text: reportDatePrompt} }
func (ResponseBuilder) InvalidDate() Reply         { return Reply{Text: invalidDateText} }
func (ResponseBuilder) ReportComplete() Reply      { return Reply{Text: reportCompleteText} }
func (ResponseBuilder) Contact() Reply             { return Reply{Text: contactText} }
func (ResponseBuilder) Unavailable() Reply         { return Reply{Text: noServiceText} }
func (ResponseBuilder) Apology() Reply             { return Reply{Text: genericApology} }
func (ResponseBuilder) Error(text string) Reply    { return Reply{Text: text} }

// CheckCategoryPrompt asks which kind of item to check, offering the categories as a list.
func (ResponseBuilder) CheckCategoryPrompt() Reply {
	return Reply{Text: checkCategoryPrompt, Interactive: categoryList(checkCategoryPrompt)}
}

// ReportCategoryPrompt asks which kind of item was stolen.
func (ResponseBuilder) ReportCategoryPrompt() Reply {
	return Reply{Text: reportCategoryPrompt, Interactive: categoryList(reportCategoryPrompt)}
}

func (ResponseBuilder) CheckCategoryConfirm(c models.ItemCategory) Reply {
	return Reply{Text: fmt.Sprintf(checkCategoryConfirm, c)}
}

func (ResponseBuilder) ReportCategoryConfirm(c models.ItemCategory) Reply {
	return Reply{Text: fmt.Sprintf(reportCategoryConfirm, c)}
}

// CheckComplete reports how many candidate matches a search found.
func (ResponseBuilder) CheckComplete(matches int) Reply {
	if matches == 0 {
		return Reply{Text: checkNoMatchesText}
	}
	plural := ""
	if matches != 1 {
		plural = "es"
	}
	return Reply{Text: fmt.Sprintf(checkMatchesText, matches, plural)}
}

// FlowPrompt renders the prompt of a configuration-driven step. List prompts offer the
// item categories; button prompts offer the quoted words of the prompt, except 'cancel'.
func (ResponseBuilder) FlowPrompt(prompt string, kind flow.PromptType) Reply {
	reply := Reply{Text: prompt}
	switch kind {
	case flow.PromptTypeList:
		reply.Interactive = categoryList(prompt)
	case flow.PromptTypeButton:
		if options := quotedOptions(prompt); len(options) > 0 {
			reply.Interactive = &Interactive{Type: InteractiveButton, Body: prompt, Options: options}
		}
	}
	return reply
}

// FlowResult renders the reply sent when a configuration-driven flow completes.
func (b ResponseBuilder) FlowResult(flowID string, result map[string]any) Reply {
	switch flowID {
	case OptionCheckItem:
		return b.CheckComplete(intValue(result["match_count"]))
	case OptionReportItem:
		return b.ReportComplete()
	case OptionContactUs:
		if msg, ok := result["message"].(string); ok && msg != "" {
			return Reply{Text: "✅ " + msg + ticketCreatedSuffix}
		}
		return b.Contact()
	}
	return Reply{Text: flowDoneText}
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func categoryList(body string) *Interactive {
	options := make([]Option, 0, len(models.ItemCategories))
	for _, c := range models.ItemCategories {
		options = append(options, Option{ID: string(c), Title: titleCase(string(c))})
	}
	return &Interactive{Type: InteractiveList, Body: body, ButtonText: "Select Category", Options: options}
}

var quotedWordRegex = regexp.MustCompile(`'([^']+)'`)

func quotedOptions(prompt string) []Option {
	var options []Option
	for _, m := range quotedWordRegex.FindAllStringSubmatch(prompt, -1) {
		word := strings.TrimSpace(m[1])
		id := strings.ToLower(word)
		if id == "" || slices.Contains(cancelWords, id) || slices.ContainsFunc(options, func(o Option) bool { return o.ID == id }) {
			continue
		}
		options = append(options, Option{ID: id, Title: titleCase(word)})
	}
	// WhatsApp allows at most three reply buttons.
	if len(options) > 3 {
		return nil
	}
	return options
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
