// Package pb holds the wire types and service descriptor of
// pizzahub.v1.OrderService. Messages travel as JSON through the codec
// registered by this package.
package pb

type IngredientRef struct {
	ID       string `json:"id"`
	Quantity int32  `json:"quantity"`
	Portion  string `json:"portion,omitempty"`
}

type DeliveryAddress struct {
	Street       string `json:"street,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zip_code,omitempty"`
	Landmark     string `json:"landmark,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type PlaceOrderRequest struct {
	RequestID           string           `json:"request_id,omitempty"`
	CustomerRef         string           `json:"customer_ref"`
	CustomerPhone       string           `json:"customer_phone,omitempty"`
	Size                string           `json:"size,omitempty"`
	Base                *IngredientRef   `json:"base"`
	Sauce               *IngredientRef   `json:"sauce"`
	Cheese              *IngredientRef   `json:"cheese"`
	Vegetables          []*IngredientRef `json:"vegetables,omitempty"`
	Meats               []*IngredientRef `json:"meats,omitempty"`
	SpecialInstructions string           `json:"special_instructions,omitempty"`
	Quantity            int32            `json:"quantity"`
	// Money fields are decimal strings.
	ItemPrice   string           `json:"item_price,omitempty"`
	DeliveryFee string           `json:"delivery_fee,omitempty"`
	Tax         string           `json:"tax,omitempty"`
	Address     *DeliveryAddress `json:"address,omitempty"`
	Notes       string           `json:"notes,omitempty"`
}

func (r *PlaceOrderRequest) GetBase() *IngredientRef {
	if r == nil {
		return nil
	}
	return r.Base
}

func (r *PlaceOrderRequest) GetSauce() *IngredientRef {
	if r == nil {
		return nil
	}
	return r.Sauce
}

func (r *PlaceOrderRequest) GetCheese() *IngredientRef {
	if r == nil {
		return nil
	}
	return r.Cheese
}

type UpdateStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Actor   string `json:"actor,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type StatusEntry struct {
	Status string `json:"status"`
	// RFC 3339 timestamps throughout.
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type Order struct {
	ID                    string         `json:"id"`
	OrderNumber           string         `json:"order_number"`
	CustomerRef           string         `json:"customer_ref"`
	Status                string         `json:"status"`
	Quantity              int32          `json:"quantity"`
	TotalAmount           string         `json:"total_amount"`
	EstimatedDeliveryTime string         `json:"estimated_delivery_time"`
	ActualDeliveryTime    string         `json:"actual_delivery_time,omitempty"`
	StatusHistory         []*StatusEntry `json:"status_history"`
}
