package api

import (
	"net/http"
	"time"

	"github.com/safar/croptap/internal/models"
)

type placeOrderRequest struct {
	CartID          int64  `json:"cart_id"`
	ShippingAddress string `json:"shipping_address"`
}

type updateOrderStatusRequest struct {
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

type updateDeliveryRequest struct {
	DeliveryStatus    models.DeliveryStatus `json:"delivery_status"`
	EstimatedDelivery *time.Time            `json:"estimated_delivery"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CartID <= 0 {
		respondError(w, http.StatusBadRequest, "cart_id is required")
		return
	}

	order, err := s.market.PlaceOrder(r.Context(), req.CartID, req.ShippingAddress)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	buyerID, err := queryInt64(r, "buyer_id")
	if err != nil || buyerID == 0 {
		respondError(w, http.StatusBadRequest, "buyer_id is required")
		return
	}

	limit := queryInt(r, "limit", 20)
	page, err := s.market.ListBuyerOrders(r.Context(), buyerID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := s.market.GetOrder(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req updateOrderStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := s.market.UpdateOrderStatus(r.Context(), id, req.Status, req.PaymentStatus)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleUpdateDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req updateDeliveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := s.market.UpdateDelivery(r.Context(), id, req.DeliveryStatus, req.EstimatedDelivery)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	if err := s.market.DeleteOrder(r.Context(), id); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Order deleted"})
}
