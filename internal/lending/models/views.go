package models

// LoanDetails is a loan enriched for display: the item title, who holds it
// and its clock-dependent figures.
type LoanDetails struct {
	Loan          *Loan  `json:"loan"`
	Status        Status `json:"status"`
	ItemTitle     string `json:"item_title"`
	Borrower      string `json:"borrower,omitempty"`
	DaysRemaining int    `json:"days_remaining"`
	FineEstimate  Money  `json:"fine_estimate"`
	Overdue       bool   `json:"overdue"`
}

// FineSummary lists what an account owes: fines fixed on returned loans and
// live estimates on overdue active loans.
type FineSummary struct {
	Settled   []LoanDetails `json:"settled"`
	Accruing  []LoanDetails `json:"accruing"`
	Fixed     Money         `json:"fixed_total"`
	Estimated Money         `json:"estimated_total"`
	Total     Money         `json:"total"`
}

type BorrowRequest struct {
	ItemID    string `json:"item_id"`
	AccountID string `json:"account_id,omitempty"`
	DueInDays int    `json:"due_in_days"`
}
