// Package domain describes the client and catalog lookups generation depends
// on. Both are owned by other parts of the application; this package only
// reads them.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrClientNotFound      = errors.New("client_not_found")
	ErrCatalogItemNotFound = errors.New("catalog_item_not_found")
)

type Client struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Email     string       `gorm:"type:text;not null;default:''" json:"email"`
	GSTIN     string       `gorm:"column:gstin;type:text;not null;default:''" json:"gstin"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Client) TableName() string { return "clients" }

type CatalogItem struct {
	ID          snowflake.ID     `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID     `gorm:"not null;index" json:"org_id"`
	Name        string           `gorm:"type:text;not null" json:"name"`
	Description string           `gorm:"type:text;not null;default:''" json:"description"`
	HSNSAC      string           `gorm:"column:hsn_sac;type:text;not null;default:''" json:"hsn_sac"`
	GSTRate     decimal.Decimal  `gorm:"type:numeric(5,2);not null" json:"gst_rate"`
	Rate        *decimal.Decimal `gorm:"type:numeric(14,2)" json:"rate,omitempty"`
	CreatedAt   time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"not null" json:"updated_at"`
}

func (CatalogItem) TableName() string { return "catalog_items" }

// Directory resolves clients and catalog items within an organization.
type Directory interface {
	GetClient(ctx context.Context, orgID, clientID snowflake.ID) (*Client, error)
	GetCatalogItem(ctx context.Context, orgID, itemID snowflake.ID) (*CatalogItem, error)
}
