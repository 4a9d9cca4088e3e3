// Package openfoodfacts resolves packaged foods by barcode against the Open
// Food Facts product database.
package openfoodfacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/saadjs/nibbles/internal/model"
)

const (
	defaultBaseURL = "https://world.openfoodfacts.org"
	userAgent      = "nibbles/1.0 (+https://github.com/saadjs/nibbles)"
)

// ErrNotFound is returned when the database has no usable product.
var ErrNotFound = fmt.Errorf("product not found: %w", model.ErrUnusableAnalysis)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// LookupBarcode returns one serving of the product as a food item. Products
// without serving data are reported per 100 g.
func (c *Client) LookupBarcode(ctx context.Context, barcode string) (model.FoodItem, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	url := fmt.Sprintf("%s/api/v2/product/%s.json", base, barcode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.FoodItem{}, fmt.Errorf("create openfoodfacts request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return model.FoodItem{}, fmt.Errorf("execute openfoodfacts request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.FoodItem{}, fmt.Errorf("read openfoodfacts response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return model.FoodItem{}, fmt.Errorf("barcode %s: %w", barcode, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.FoodItem{}, fmt.Errorf("openfoodfacts request failed with status %d", resp.StatusCode)
	}

	var parsed productResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.FoodItem{}, fmt.Errorf("decode openfoodfacts response: %w", err)
	}
	p := parsed.Product
	if parsed.Status != 1 || strings.TrimSpace(p.ProductName) == "" {
		return model.FoodItem{}, fmt.Errorf("barcode %s: %w", barcode, ErrNotFound)
	}
	return p.item(), nil
}

func (p product) item() model.FoodItem {
	suffix, portion := "_100g", "100g"
	if _, ok := parseFloatAny(p.Nutriments["energy-kcal_serving"]); ok {
		suffix, portion = "_serving", p.portion()
	}
	name := strings.TrimSpace(p.ProductName)
	if brand := firstBrand(p.Brands); brand != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(brand)) {
		name = brand + " " + name
	}
	value := func(key string) float64 {
		v, _ := parseFloatAny(p.Nutriments[key+suffix])
		return v
	}
	return model.FoodItem{
		Name:     name,
		Portion:  portion,
		Calories: int(value("energy-kcal") + 0.5),
		ProteinG: model.Round1(value("proteins")),
		CarbsG:   model.Round1(value("carbohydrates")),
		FatG:     model.Round1(value("fat")),
	}
}

func (p product) portion() string {
	if p.ServingQuantity > 0 {
		unit := strings.TrimSpace(p.ServingQuantityUnit)
		if unit == "" {
			unit = "g"
		}
		return strconv.FormatFloat(p.ServingQuantity, 'f', -1, 64) + unit
	}
	if s := strings.TrimSpace(p.ServingSize); s != "" {
		return s
	}
	return "1 serving"
}

func firstBrand(brands string) string {
	first, _, _ := strings.Cut(brands, ",")
	return strings.TrimSpace(first)
}

func parseFloatAny(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

type productResponse struct {
	Status  int     `json:"status"`
	Product product `json:"product"`
}

type product struct {
	ProductName         string         `json:"product_name"`
	Brands              string         `json:"brands"`
	ServingSize         string         `json:"serving_size"`
	ServingQuantity     float64        `json:"serving_quantity"`
	ServingQuantityUnit string         `json:"serving_quantity_unit"`
	Nutriments          map[string]any `json:"nutriments"`
}
