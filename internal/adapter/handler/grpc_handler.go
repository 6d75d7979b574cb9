package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/pizzahub/internal/adapter/handler/pb"
	"github.com/rl1809/pizzahub/internal/core/domain"
	"github.com/rl1809/pizzahub/internal/core/service"
)

type GRPCHandler struct {
	pb.UnimplementedOrderServiceServer
	orderService *service.OrderService
	logger       *slog.Logger
}

func NewGRPCHandler(orderService *service.OrderService, logger *slog.Logger) *GRPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCHandler{orderService: orderService, logger: logger.With("component", "grpc_handler")}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *pb.PlaceOrderRequest) (*pb.Order, error) {
	in, err := placeOrderInput(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	order, err := h.orderService.PlaceOrder(ctx, in)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toPBOrder(order), nil
}

func (h *GRPCHandler) UpdateStatus(ctx context.Context, req *pb.UpdateStatusRequest) (*pb.Order, error) {
	if req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, h.toStatus(err)
	}

	order, err := h.orderService.UpdateStatus(ctx, req.OrderID, next, req.Actor, req.Notes)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toPBOrder(order), nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *pb.GetOrderRequest) (*pb.Order, error) {
	order, err := h.orderService.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toPBOrder(order), nil
}

func (h *GRPCHandler) toStatus(err error) error {
	m := classify(err)
	if m.code == codes.Internal {
		h.logger.Error("rpc failed", "error", err)
	}
	msg := m.message
	if key, ok := failedIngredient(err); ok {
		msg = fmt.Sprintf("%s: %s", msg, key)
	}
	return status.Error(m.code, msg)
}

func placeOrderInput(req *pb.PlaceOrderRequest) (service.PlaceOrderInput, error) {
	pricing, err := parsePricing(req.ItemPrice, req.DeliveryFee, req.Tax)
	if err != nil {
		return service.PlaceOrderInput{}, err
	}

	cfg := domain.PizzaConfiguration{
		Size:                domain.PizzaSize(req.Size),
		Base:                fromPBRef(req.GetBase(), domain.IngredientBase),
		Sauce:               fromPBRef(req.GetSauce(), domain.IngredientSauce),
		Cheese:              fromPBRef(req.GetCheese(), domain.IngredientCheese),
		SpecialInstructions: req.SpecialInstructions,
	}
	for _, v := range req.Vegetables {
		cfg.Vegetables = append(cfg.Vegetables, fromPBRef(v, domain.IngredientVegetable))
	}
	for _, m := range req.Meats {
		cfg.Meats = append(cfg.Meats, fromPBRef(m, domain.IngredientMeat))
	}

	in := service.PlaceOrderInput{
		RequestID:     req.RequestID,
		CustomerRef:   req.CustomerRef,
		CustomerPhone: req.CustomerPhone,
		Configuration: cfg,
		Quantity:      int(req.Quantity),
		Pricing:       pricing,
		Notes:         req.Notes,
	}
	if a := req.Address; a != nil {
		in.DeliveryAddress = domain.DeliveryAddress{
			Street:       a.Street,
			City:         a.City,
			State:        a.State,
			ZipCode:      a.ZipCode,
			Landmark:     a.Landmark,
			Instructions: a.Instructions,
		}
	}
	return in, nil
}

func parsePricing(item, fee, tax string) (domain.Pricing, error) {
	var p domain.Pricing
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"item_price", item, &p.ItemPrice},
		{"delivery_fee", fee, &p.DeliveryFee},
		{"tax", tax, &p.Tax},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return domain.Pricing{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return p, nil
}

func fromPBRef(ref *pb.IngredientRef, typ domain.IngredientType) domain.IngredientRef {
	if ref == nil {
		return domain.IngredientRef{Type: typ}
	}
	return domain.IngredientRef{
		Type:     typ,
		ID:       ref.ID,
		Quantity: int(ref.Quantity),
		Portion:  domain.Portion(ref.Portion),
	}
}

func toPBOrder(o domain.Order) *pb.Order {
	out := &pb.Order{
		ID:                    o.ID,
		OrderNumber:           o.OrderNumber,
		CustomerRef:           o.CustomerRef,
		Status:                string(o.Status),
		Quantity:              int32(o.Quantity),
		TotalAmount:           o.Pricing.TotalAmount.StringFixed(2),
		EstimatedDeliveryTime: o.EstimatedDeliveryTime.Format(time.RFC3339),
	}
	if o.ActualDeliveryTime != nil {
		out.ActualDeliveryTime = o.ActualDeliveryTime.Format(time.RFC3339)
	}
	for _, e := range o.StatusHistory {
		out.StatusHistory = append(out.StatusHistory, &pb.StatusEntry{
			Status:    string(e.Status),
			Timestamp: e.Timestamp.Format(time.RFC3339),
			Actor:     e.Actor,
			Notes:     e.Notes,
		})
	}
	return out
}
