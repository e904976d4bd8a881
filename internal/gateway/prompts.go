package gateway

import (
	"encoding/json"
	"fmt"
)

const systemAuthority = "You simulate the Costa Rican Ministry of Finance electronic invoicing API (v4.4). " +
	"Answer only with the requested JSON document."

func credentialsPrompt(c CredentialCheck) string {
	return fmt.Sprintf(`Validate these e-invoicing API credentials for the %s environment.
User: %q
PIN length: %d
Rules: the user must start with "cpj-" or be a national id number, the PIN must be 4 digits.
Return {"valid": boolean, "token": string, "error": string}.`,
		c.Environment, c.User, len(c.PIN))
}

func documentPrompt(doc DocumentRequest) string {
	payload, _ := json.Marshal(doc)
	return fmt.Sprintf(`Validate this electronic document of type %s against the v4.4 schema.
Document: %s
Return {"status": "accepted" | "rejected", "clavedigital": a 50 digit numeric key, "message": string}.`,
		doc.Type, payload)
}

func acceptancePrompt(req AcceptanceRequest) string {
	payload, _ := json.Marshal(req)
	return fmt.Sprintf(`Process this receiver acceptance message (01 total acceptance, 02 partial, 03 rejection).
Message: %s
Return {"success": boolean, "consecutive": string, "response": string}.`, payload)
}

func identityPrompt(nationalID string) string {
	return fmt.Sprintf(`Look up the full legal name registered in the Costa Rican civil registry for national id %q.
Return {"full_name": string}; use an empty string when the id is not registered.`, nationalID)
}

func cabysPrompt(query string) string {
	return fmt.Sprintf(`Search the CABYS goods and services catalog for %q in a veterinary context.
Return a JSON array of at most 5 entries {"code": 13 digit string, "description": string, "tax": VAT rate as a decimal such as 0.13}.`, query)
}

func batchMessagePrompt(req BatchMessageRequest) string {
	return fmt.Sprintf(`Write one friendly SMS in Spanish, at most %d characters, from %s at %s reminding %s about %s's appointment (%s) on %s %s.
Return only the message text.`,
		batchMessageLimit, req.DoctorName, req.ClinicName, req.OwnerName, req.PetName, req.Reason, req.Date, req.Time)
}

func reminderPrompt(req ReminderRequest) string {
	return fmt.Sprintf(`Write one short, warm reminder in Spanish, at most %d characters, telling a pet owner that %s is due for %s.
Return only the message text.`, reminderLimit, req.PetName, req.Reason)
}
