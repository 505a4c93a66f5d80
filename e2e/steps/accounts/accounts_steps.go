package accounts

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cucumber/godog"
)

// Password is the password of every account the steps create.
const Password = "Abcdefg1!"

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	PUT(path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	SetToken(name, token string)
	UseToken(name string) error
	Save(key, value string)
	Saved(key string) (string, error)
}

// RegisterSteps registers registration, login and staff management steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &accountSteps{tc: tc}

	ctx.Step(`^I am logged in as the administrator$`, steps.loginAsAdministrator)
	ctx.Step(`^a reader "([^"]*)" has registered$`, steps.readerHasRegistered)
	ctx.Step(`^the administrator created a librarian "([^"]*)"$`, steps.adminCreatedLibrarian)
	ctx.Step(`^I register "([^"]*)" with national id "([^"]*)"$`, steps.registerWithNationalID)
	ctx.Step(`^I log in as "([^"]*)" with a wrong password$`, steps.loginWithWrongPassword)
	ctx.Step(`^I promote "([^"]*)" to "([^"]*)"$`, steps.promote)
	ctx.Step(`^I toggle the account of "([^"]*)"$`, steps.toggle)
}

type accountSteps struct {
	tc TestContext
}

var sequence atomic.Int64

// uniqueSuffix keeps emails and national ids distinct across runs against
// the same database.
func uniqueSuffix() int64 {
	return time.Now().Unix()%1_000_000*100 + sequence.Add(1)%100
}

// nationalID returns a RUT with a valid modulo-11 check character.
func nationalID(number int64) string {
	digits := strconv.FormatInt(number, 10)
	sum, multiplier := 0, 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * multiplier
		if multiplier++; multiplier > 7 {
			multiplier = 2
		}
	}
	switch check := 11 - sum%11; check {
	case 11:
		return digits + "-0"
	case 10:
		return digits + "-K"
	default:
		return digits + "-" + strconv.Itoa(check)
	}
}

func registration(name string, suffix int64) map[string]any {
	return map[string]any{
		"email":            fmt.Sprintf("%s.%d@example.com", name, suffix),
		"password":         Password,
		"password_confirm": Password,
		"first_name":       "Prueba",
		"last_name":        "Lectora",
		"national_id":      nationalID(10_000_000 + suffix),
		"address":          "Calle Falsa 123",
		"phone":            "9 1234 5678",
	}
}

func (s *accountSteps) login(name, login, password string) error {
	if err := s.tc.POST("/auth/login", map[string]string{"login": login, "password": password}); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("login as %s: status %d", login, status)
	}
	token, err := s.tc.GetResponseField("access_token")
	if err != nil {
		return err
	}
	s.tc.SetToken(name, fmt.Sprint(token))
	return nil
}

func (s *accountSteps) loginAsAdministrator(ctx context.Context) error {
	login := os.Getenv("E2E_ADMIN_LOGIN")
	password := os.Getenv("E2E_ADMIN_PASSWORD")
	if login == "" || password == "" {
		return fmt.Errorf("E2E_ADMIN_LOGIN and E2E_ADMIN_PASSWORD are required")
	}
	return s.login("admin", login, password)
}

// create posts a registration to path, remembers the new account's id and
// email under name, and logs in as it.
func (s *accountSteps) create(name, path string) error {
	body := registration(name, uniqueSuffix())
	if err := s.tc.POST(path, body); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 201 {
		return fmt.Errorf("create %s: status %d", name, status)
	}
	accountID, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Save(name+".id", fmt.Sprint(accountID))
	s.tc.Save(name+".email", body["email"].(string))
	return s.login(name, body["email"].(string), Password)
}

func (s *accountSteps) readerHasRegistered(ctx context.Context, name string) error {
	if err := s.tc.UseToken(""); err != nil {
		return err
	}
	return s.create(name, "/auth/register")
}

func (s *accountSteps) adminCreatedLibrarian(ctx context.Context, name string) error {
	if err := s.tc.UseToken("admin"); err != nil {
		return err
	}
	return s.create(name, "/admin/librarians")
}

func (s *accountSteps) registerWithNationalID(ctx context.Context, name, rut string) error {
	body := registration(name, uniqueSuffix())
	body["national_id"] = rut
	return s.tc.POST("/auth/register", body)
}

func (s *accountSteps) loginWithWrongPassword(ctx context.Context, name string) error {
	login, err := s.tc.Saved(name + ".email")
	if err != nil {
		return err
	}
	return s.tc.POST("/auth/login", map[string]string{"login": login, "password": "Wrong-pass1"})
}

func (s *accountSteps) promote(ctx context.Context, name, role string) error {
	accountID, err := s.tc.Saved(name + ".id")
	if err != nil {
		return err
	}
	return s.tc.PUT("/admin/accounts/"+accountID+"/role", map[string]string{"role": role})
}

func (s *accountSteps) toggle(ctx context.Context, name string) error {
	accountID, err := s.tc.Saved(name + ".id")
	if err != nil {
		return err
	}
	return s.tc.POST("/admin/accounts/"+accountID+"/toggle", nil)
}
