package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxNicknameLength is the longest nickname accepted, in characters.
	MaxNicknameLength = 64
	// MaxNameLength bounds admin and product names, in characters.
	MaxNameLength = 100
)

type (
	AdminID    int64
	ProductID  int64
	DebtLineID int64

	// Admin is a person who can take products on credit.
	// An empty Nickname means no nickname is set.
	Admin struct {
		ID       AdminID
		Name     string
		Nickname string
	}

	Product struct {
		ID    ProductID
		Name  string
		Price Money
	}

	// DebtLine records one take of a product. Amount is the quantity times the
	// product price at recording time and never changes afterwards.
	DebtLine struct {
		ID        DebtLineID
		AdminID   AdminID
		ProductID ProductID
		Quantity  int
		Amount    Money
		CreatedAt time.Time
	}

	// Settlement summarizes the debt lines removed by a settle operation.
	Settlement struct {
		AdminID AdminID
		Lines   int
		Total   Money
	}
)

// ValidateName trims s and checks it is usable as an admin or product name.
func ValidateName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > MaxNameLength {
		return "", ErrInvalidName
	}
	return s, nil
}

// ValidateNickname trims s and rejects empty or overlong nicknames.
func ValidateNickname(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > MaxNicknameLength {
		return "", ErrInvalidNickname
	}
	return s, nil
}

func ValidateQuantity(q int) error {
	if q <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
