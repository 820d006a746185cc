package reception

import (
	"fmt"
	"strings"

	"github.com/binaryelements/becaller/internal/apiclient"
)

// buildInstructions composes the system instructions for the main reception
// engine session from the tenant configuration, the caller's number and any
// known-contact record.
func buildInstructions(cfg *apiclient.PhoneConfig, caller string, contact *apiclient.Contact) string {
	voice := "alloy"
	if cfg.Metadata.VoiceSettings != nil && cfg.Metadata.VoiceSettings.Voice != "" {
		voice = cfg.Metadata.VoiceSettings.Voice
	}
	companyName := "our company"
	if cfg.Company != nil && cfg.Company.Name != "" {
		companyName = cfg.Company.Name
	}

	var b strings.Builder

	b.WriteString("# Important Rules\n")
	b.WriteString("- Always speak in English\n")
	fmt.Fprintf(&b, "- Do not change voice, always use %s\n\n", voice)

	b.WriteString("# Personality\n\n")
	fmt.Fprintf(&b, "You are the digital receptionist for %s.\n\n", companyName)
	if cfg.Instructions != "" {
		b.WriteString(cfg.Instructions)
		b.WriteString("\n\n")
	}
	b.WriteString("You're naturally conversational, handling ambiguity gracefully " +
		"(like distinguishing between two people with the same first name when " +
		"someone asks for \"James from Sales\").\n\n")

	b.WriteString("# Core Workflow\n\n")
	b.WriteString("## Step 1: Initial Greeting\n")
	b.WriteString("- Identify the caller's destination need (person or department)\n")
	fmt.Fprintf(&b, "- Use the caller's phone number (%s) for lookup if available\n\n", caller)

	b.WriteString("## Step 2: Information Collection\n")
	b.WriteString("ALWAYS collect before attempting transfer:\n")
	b.WriteString("- Caller's name\n")
	b.WriteString("- Company/organization\n")
	fmt.Fprintf(&b, "- Phone number (default to %s if they say \"this number\")\n", caller)
	b.WriteString("- Brief message or reason for calling\n\n")

	b.WriteString("## Step 3: Availability Check & Transfer\n")
	b.WriteString("- If available: announce \"Transferring you now\" and transfer with context\n")
	b.WriteString("- Always offer callback scheduling when transfers fail\n\n")

	if cfg.Company != nil && cfg.Company.DataCollectionFields != nil {
		custom := cfg.Company.DataCollectionFields.CustomFields
		if len(custom) > 0 {
			b.WriteString("# Additional Fields to Collect\n")
			for _, f := range custom {
				req := "optional"
				if f.Required {
					req = "required"
				}
				fmt.Fprintf(&b, "- %s (%s)", f.Label, req)
				if f.AIPrompt != "" {
					fmt.Fprintf(&b, ": %s", f.AIPrompt)
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}

	if contact != nil {
		b.WriteString("# Known Caller Information\n")
		fmt.Fprintf(&b, "- Name: %s\n", contact.Name)
		if contact.CompanyName != "" {
			fmt.Fprintf(&b, "- Company: %s\n", contact.CompanyName)
		}
		fmt.Fprintf(&b, "- Previous Calls: %d\n", contact.TotalCalls)
		if contact.IsVip {
			b.WriteString("- VIP Status: VIP Customer\n")
		}
		if contact.Notes != "" {
			fmt.Fprintf(&b, "- Notes: %s\n", contact.Notes)
		}
		b.WriteString("\n")
	}

	b.WriteString("# Available Departments\n")
	if len(cfg.Metadata.Departments) > 0 {
		for _, d := range cfg.Metadata.Departments {
			fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
		}
	} else {
		b.WriteString("- sales\n- support\n- billing\n- technical\n")
	}
	b.WriteString("\n")

	b.WriteString("# Tone & Conversation Style\n")
	b.WriteString("- Professional but friendly, you're the first point of contact\n")
	b.WriteString("- Efficient, respect the caller's time\n")
	b.WriteString("- Use natural pauses with ellipses (\"...\") when formatting for speech\n")
	b.WriteString("- Use conversational confirmations (\"Got it\", \"One moment\")\n\n")

	b.WriteString("# Guardrails\n")
	b.WriteString("- Stay focused on call routing and callback scheduling\n")
	b.WriteString("- Don't provide extensive technical support, collect info and route appropriately\n")
	b.WriteString("- Always confirm callback numbers and times by repeating them\n")
	b.WriteString("- Never claim to be human, you're an AI receptionist\n")
	b.WriteString("- If input is garbled, politely ask for clarification\n\n")

	b.WriteString("# Error Handling\n")
	b.WriteString("If a transfer fails: \"I'm having trouble reaching them right now. " +
		"Let me schedule a callback for you so someone can get back to you shortly.\"\n")

	return b.String()
}

// buildCallbackInstructions is the narrowed prompt for the sub-session
// entered after a failed transfer. The engine's only job from here is to get
// a callback scheduled.
func buildCallbackInstructions(caller string) string {
	var b strings.Builder
	b.WriteString("The transfer to the department failed. You should now offer to " +
		"schedule a callback for the customer.\n\n")
	b.WriteString("Ask for their preferred callback time and confirm the phone number. ")
	fmt.Fprintf(&b, "If they say \"this number\" or \"same number\", use %s. ", caller)
	b.WriteString("Once they agree, use the schedule_callback function to save it, " +
		"then confirm the scheduled time by repeating it back, and politely end the call.\n")
	return b.String()
}
