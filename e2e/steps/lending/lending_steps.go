package lending

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	Save(key, value string)
	Saved(key string) (string, error)
}

// RegisterSteps registers catalog, borrowing and return steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &lendingSteps{tc: tc}

	ctx.Step(`^I add "([^"]*)" to the catalog with (\d+) cop(?:y|ies)$`, steps.addItem)
	ctx.Step(`^I borrow "([^"]*)"$`, steps.borrow)
	ctx.Step(`^I lend "([^"]*)" to "([^"]*)"$`, steps.lendTo)
	ctx.Step(`^I return the loan of "([^"]*)"$`, steps.returnLoan)
	ctx.Step(`^"([^"]*)" should be (available|unavailable)$`, steps.availability)
	ctx.Step(`^I should have (\d+) active loans?$`, steps.activeLoans)
}

type lendingSteps struct {
	tc TestContext
}

func (s *lendingSteps) addItem(ctx context.Context, title string, copies int) error {
	err := s.tc.POST("/items", map[string]any{
		"title":  title,
		"author": "Isabel Allende",
		"genre":  "Novela",
		"copies": copies,
	})
	if err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 201 {
		return nil
	}
	itemID, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Save("item:"+title, fmt.Sprint(itemID))
	return nil
}

func (s *lendingSteps) borrowFor(title, accountID string) error {
	itemID, err := s.tc.Saved("item:" + title)
	if err != nil {
		return err
	}
	body := map[string]any{"item_id": itemID}
	if accountID != "" {
		body["account_id"] = accountID
	}
	if err := s.tc.POST("/loans", body); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	loanID, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Save("loan:"+title, fmt.Sprint(loanID))
	return nil
}

func (s *lendingSteps) borrow(ctx context.Context, title string) error {
	return s.borrowFor(title, "")
}

func (s *lendingSteps) lendTo(ctx context.Context, title, name string) error {
	accountID, err := s.tc.Saved(name + ".id")
	if err != nil {
		return err
	}
	return s.borrowFor(title, accountID)
}

func (s *lendingSteps) returnLoan(ctx context.Context, title string) error {
	loanID, err := s.tc.Saved("loan:" + title)
	if err != nil {
		return err
	}
	return s.tc.POST("/loans/"+loanID+"/return", nil)
}

func (s *lendingSteps) availability(ctx context.Context, title, want string) error {
	itemID, err := s.tc.Saved("item:" + title)
	if err != nil {
		return err
	}
	if err := s.tc.GET("/items/" + itemID); err != nil {
		return err
	}
	available, err := s.tc.GetResponseField("available_copies")
	if err != nil {
		return err
	}
	n, _ := available.(float64)
	if got := n > 0; got != (want == "available") {
		return fmt.Errorf("%q has %v available copies, expected %s", title, available, want)
	}
	return nil
}

func (s *lendingSteps) activeLoans(ctx context.Context, expected int) error {
	if err := s.tc.GET("/me/loans"); err != nil {
		return err
	}
	var loans []json.RawMessage
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &loans); err != nil {
		return fmt.Errorf("unexpected /me/loans body %s: %w", s.tc.GetLastResponseBody(), err)
	}
	if len(loans) != expected {
		return fmt.Errorf("expected %d active loans, got %d", expected, len(loans))
	}
	return nil
}
