package models

import "strings"

// MinNameLength applies to both first and last name.
const MinNameLength = 2

// RegisterRequest carries the self-registration form. The same shape is used
// by administrators creating librarian accounts.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	NationalID      string `json:"national_id"`
	Address         string `json:"address"`
	Phone           string `json:"phone"`
}

// Normalize trims free text and lowercases the email. Passwords are untouched.
func (r *RegisterRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.NationalID = strings.TrimSpace(r.NationalID)
	r.Address = strings.TrimSpace(r.Address)
	r.Phone = strings.TrimSpace(r.Phone)
}

// UpdateDetailsRequest edits personal data of the caller's own account.
type UpdateDetailsRequest struct {
	CurrentPassword string `json:"current_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
}

func (r *UpdateDetailsRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)
}

type ChangeHandleRequest struct {
	CurrentPassword string `json:"current_password"`
	Handle          string `json:"handle"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	Confirm         string `json:"confirm"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type PromoteRequest struct {
	Role string `json:"role"`
}
