package models

// CreditsAddedMessage is the exact marker the credits ledger returns when a
// credit was applied. Anything else counts as a failure.
const CreditsAddedMessage = "Credits added successfully"

// BillingAddress is the address collected by the payment form.
type BillingAddress struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// AsMap is used where the address is stored as a JSON column.
func (a BillingAddress) AsMap() map[string]any {
	m := map[string]any{
		"line1":       a.Line1,
		"city":        a.City,
		"state":       a.State,
		"postal_code": a.PostalCode,
		"country":     a.Country,
	}
	if a.Name != "" {
		m["name"] = a.Name
	}
	if a.Line2 != "" {
		m["line2"] = a.Line2
	}
	return m
}

// AddCreditsRequest is the body of POST /api/credits/add/.
type AddCreditsRequest struct {
	UserID  string `json:"userId"`
	Amount  int64  `json:"amount"`
	Address any    `json:"address"`
}

type AddCreditsResponse struct {
	Message string `json:"message"`
}
