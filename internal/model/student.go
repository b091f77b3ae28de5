package model

import (
	"strings"

	"gorm.io/gorm"
)

type Student struct {
	gorm.Model
	Email       string `json:"email" gorm:"uniqueIndex;not null"`
	Password    string `json:"-" gorm:"not null"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`

	// Cached after the first subscription so later ones skip the lookup.
	BillingCustomerID string `json:"-" gorm:"index"`
}

func (s *Student) GetFullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

func (s *Student) GetPublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":          s.ID,
		"email":       s.Email,
		"fullName":    s.GetFullName(),
		"phoneNumber": s.PhoneNumber,
	}
}
