package workflow

// BuiltinTemplates are starting-point definitions surfaced by the templates
// endpoint. They are plain definitions; saving one goes through the usual
// create path and versioning.
var BuiltinTemplates = []Workflow{
	{
		Name:        "lead_score_and_notify",
		Description: "Score an inbound lead and email sales when it qualifies",
		TriggerType: TriggerEvent,
		Status:      StatusDraft,
		Steps: []Step{
			{
				Type: StepHTTPRequest, Name: "score_lead", OutputKey: "score_response",
				HTTP: &HTTPStep{
					Method: "POST",
					URL:    "http://analytics:8000/api/v1/leads/score",
					Body:   map[string]any{"lead_id": "{{ input.lead_id }}"},
				},
			},
			{
				Type: StepCondition, Name: "qualifies", OutputKey: "qualified",
				Condition: &Condition{
					Kind:     "comparison",
					Operator: "gte",
					Left:     Operand{Type: "variable", Path: "input.score"},
					Right:    Operand{Type: "literal", Value: 80},
				},
			},
			{
				Type: StepEmail, Name: "notify_sales", OutputKey: "notified",
				Email: &EmailStep{
					To:      []string{"sales@example.com"},
					Subject: "Qualified lead {{ input.lead_id }}",
					Body:    "Lead {{ input.lead_id }} scored above threshold.",
				},
			},
		},
	},
	{
		Name:        "deal_won_followup",
		Description: "Wait out the cooling-off period, then create a follow-up activity",
		TriggerType: TriggerEvent,
		Status:      StatusDraft,
		Steps: []Step{
			{
				Type:  StepDelay,
				Name:  "cooling_off",
				Delay: &DelayStep{Seconds: 60},
			},
			{
				Type: StepHTTPRequest, Name: "create_activity", OutputKey: "activity",
				HTTP: &HTTPStep{
					Method: "POST",
					URL:    "http://crm-core:8000/api/v1/activities",
					Body: map[string]any{
						"deal_id": "{{ input.deal_id }}",
						"kind":    "followup_call",
					},
				},
			},
		},
	},
	{
		Name:        "contact_enrichment",
		Description: "Enrich a contact and reshape the result for the CRM",
		TriggerType: TriggerAPI,
		Status:      StatusDraft,
		Steps: []Step{
			{
				Type: StepHTTPRequest, Name: "enrich", OutputKey: "enriched",
				HTTP: &HTTPStep{
					Method: "GET",
					URL:    "http://enrichment:8000/api/v1/contacts/{{ input.contact_id }}",
				},
			},
			{
				Type: StepFunction, Name: "reshape", OutputKey: "payload",
				Function: &FunctionStep{
					Function: "transform",
					Template: map[string]any{
						"contact_id": "{{ input.contact_id }}",
						"enriched":   "{{ vars.enriched }}",
					},
				},
			},
		},
	},
}
