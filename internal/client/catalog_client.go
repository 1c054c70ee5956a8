package client

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/pricing"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
)

// CatalogClient is a client for the product catalog service
type CatalogClient struct {
	client *resty.Client
}

// NewCatalogClient creates a new catalog service client
func NewCatalogClient(baseURL string, timeout time.Duration) *CatalogClient {
	return &CatalogClient{client: newRestClient(baseURL, timeout)}
}

// GetProduct looks up a product by SKU and maps it to the fields a line item
// is prefilled with.
func (c *CatalogClient) GetProduct(ctx context.Context, entityID, sku string) (*proposal.CatalogEntry, error) {
	var product CatalogProduct
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"sku": sku, "entity_id": entityID}).
		SetResult(&product).
		SetError(&ErrorResponse{}).
		Get("/api/v1/products/get")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get catalog product")
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusNotFound {
			return nil, errors.NotFound("catalog_product", sku)
		}
		return nil, upstreamError("catalog", resp)
	}
	if !product.IsActive {
		return nil, errors.InvalidInput("sku", "catalog product "+sku+" is inactive")
	}

	return &proposal.CatalogEntry{
		SKU:           product.SKU,
		Name:          product.Name,
		Description:   product.Description,
		Kind:          pricing.ItemKind(product.Type),
		UnitPrice:     product.Price,
		MarginPercent: product.MarginPercent,
		SetupFee:      product.SetupFee,
		TaxPercent:    product.TaxPercent,
		Vendor:        product.Vendor,
	}, nil
}
