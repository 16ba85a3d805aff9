package model

import "time"

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

type User struct {
	ID           int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string  `gorm:"type:varchar(100);not null" json:"name"`
	Surname      string  `gorm:"type:varchar(100);not null" json:"surname"`
	Username     string  `gorm:"type:varchar(20);uniqueIndex;not null" json:"username"`
	Email        string  `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone        *string `gorm:"type:varchar(30)" json:"phone,omitempty"`
	PasswordHash string  `gorm:"column:password_hash;not null" json:"-"`
	Role         Role    `gorm:"type:varchar(20);not null;default:'CUSTOMER'" json:"role"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
