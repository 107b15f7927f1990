package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	directorydomain "github.com/smallbiznis/invoicely/internal/directory/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) directorydomain.Directory {
	return &repo{db: conn}
}

func (r *repo) GetClient(ctx context.Context, orgID, clientID snowflake.ID) (*directorydomain.Client, error) {
	var client directorydomain.Client
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, email, gstin, created_at, updated_at
		 FROM clients WHERE org_id = ? AND id = ?`,
		orgID,
		clientID,
	).Scan(&client).Error
	if err != nil {
		return nil, err
	}
	if client.ID == 0 {
		return nil, directorydomain.ErrClientNotFound
	}
	return &client, nil
}

func (r *repo) GetCatalogItem(ctx context.Context, orgID, itemID snowflake.ID) (*directorydomain.CatalogItem, error) {
	var item directorydomain.CatalogItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, description, hsn_sac, gst_rate, rate, created_at, updated_at
		 FROM catalog_items WHERE org_id = ? AND id = ?`,
		orgID,
		itemID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, directorydomain.ErrCatalogItemNotFound
	}
	return &item, nil
}
