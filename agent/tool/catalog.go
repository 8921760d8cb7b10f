package tool

import (
	openaisdk "github.com/openai/openai-go"
)

const (
	ToolCreateContact         = "create_contact"
	ToolUpdateContact         = "update_contact"
	ToolCreateDeal            = "create_deal"
	ToolUpdateDeal            = "update_deal"
	ToolSendConfirmationEmail = "send_confirmation_email"
)

// Spec declares one callable tool: its name, the description the planner
// selects on, and a JSON schema for its parameters. Adding a tool means
// adding a Spec here and a binding in the Gateway.
type Spec struct {
	Name        string
	Description string
	Parameters  openaisdk.FunctionParameters
}

// Catalog returns the declarations for every operation the orchestrator
// may invoke.
func Catalog() []Spec {
	return []Spec{
		{
			Name:        ToolCreateContact,
			Description: "Create a CRM contact keyed on email, reusing the existing record if one already exists for that email.",
			Parameters: openaisdk.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"email":      map[string]any{"type": "string", "description": "Contact email address, the unique identity key"},
					"first_name": map[string]any{"type": "string", "description": "Contact first name"},
					"last_name":  map[string]any{"type": "string", "description": "Contact last name"},
					"phone":      map[string]any{"type": "string", "description": "Contact phone number"},
				},
				"required": []string{"email"},
			},
		},
		{
			Name:        ToolUpdateContact,
			Description: "Update fields on an existing CRM contact identified by email or contact id.",
			Parameters: openaisdk.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"contact_id": map[string]any{"type": "string", "description": "Provider-assigned contact identifier, if known"},
					"email":      map[string]any{"type": "string", "description": "Contact email address used to resolve the record when no id is given"},
					"first_name": map[string]any{"type": "string", "description": "New first name"},
					"last_name":  map[string]any{"type": "string", "description": "New last name"},
					"phone":      map[string]any{"type": "string", "description": "New phone number"},
				},
			},
		},
		{
			Name:        ToolCreateDeal,
			Description: "Create a CRM deal and optionally associate it with a contact by email. The deal succeeds even when the association fails.",
			Parameters: openaisdk.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"name":                     map[string]any{"type": "string", "description": "Deal name; a placeholder is generated when omitted"},
					"amount":                   map[string]any{"type": "number", "description": "Non-negative monetary amount"},
					"stage":                    map[string]any{"type": "string", "description": "Pipeline stage; defaults to the initial stage when omitted or unrecognized"},
					"pipeline":                 map[string]any{"type": "string", "description": "Pipeline identifier"},
					"associated_contact_email": map[string]any{"type": "string", "description": "Email of the contact to associate the deal with"},
				},
			},
		},
		{
			Name:        ToolUpdateDeal,
			Description: "Update fields on an existing CRM deal identified by its id.",
			Parameters: openaisdk.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"deal_id":  map[string]any{"type": "string", "description": "Provider-assigned deal identifier"},
					"name":     map[string]any{"type": "string", "description": "New deal name"},
					"amount":   map[string]any{"type": "number", "description": "New non-negative amount"},
					"stage":    map[string]any{"type": "string", "description": "New pipeline stage"},
					"pipeline": map[string]any{"type": "string", "description": "New pipeline identifier"},
				},
				"required": []string{"deal_id"},
			},
		},
		{
			Name:        ToolSendConfirmationEmail,
			Description: "Send a confirmation email summarizing the CRM actions just performed. Recipient and subject fall back to configured defaults.",
			Parameters: openaisdk.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"to":      map[string]any{"type": "string", "description": "Recipient email address; configured default when omitted"},
					"subject": map[string]any{"type": "string", "description": "Subject line; configured default when omitted"},
					"html":    map[string]any{"type": "string", "description": "HTML body summarizing the actions"},
					"text":    map[string]any{"type": "string", "description": "Optional plain-text alternative"},
				},
				"required": []string{"html"},
			},
		},
	}
}
