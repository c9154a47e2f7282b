package api

import (
	"net/http"
	"strconv"

	"github.com/safar/croptap/internal/market"
)

type cartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type addToCartRequest struct {
	BuyerID   int64             `json:"buyer_id"`
	CartID    int64             `json:"cart_id"`
	CartItems []cartItemRequest `json:"cart_items"`
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.BuyerID <= 0 {
		respondError(w, http.StatusBadRequest, "buyer_id is required")
		return
	}

	items := make([]market.CartItemRequest, 0, len(req.CartItems))
	for _, item := range req.CartItems {
		items = append(items, market.CartItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	cart, err := s.market.AddItems(r.Context(), req.BuyerID, req.CartID, items)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if req.CartID == 0 {
		status = http.StatusCreated
	}
	respondJSON(w, status, cart)
}

func (s *Server) handleCartsByBuyer(w http.ResponseWriter, r *http.Request) {
	buyerID, err := queryInt64(r, "buyer_id")
	if err != nil || buyerID == 0 {
		respondError(w, http.StatusBadRequest, "buyer_id is required")
		return
	}

	carts, err := s.market.CartsByBuyer(r.Context(), buyerID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, carts)
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cart ID")
		return
	}

	cart, err := s.market.GetCart(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (s *Server) handleCartTotal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cart ID")
		return
	}

	total, err := s.market.CartTotal(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cart_id": id,
		"total":   total,
	})
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cart ID")
		return
	}

	remove, _ := strconv.ParseBool(r.URL.Query().Get("remove"))

	result, err := s.market.ClearCart(r.Context(), id, remove)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	cartID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cart ID")
		return
	}
	productID, err := pathID(r, "product_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	if err := s.market.RemoveItem(r.Context(), cartID, productID); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Item removed",
		"cart_id":    cartID,
		"product_id": productID,
	})
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) handleSetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	cartID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cart ID")
		return
	}
	productID, err := pathID(r, "product_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req setQuantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	line, err := s.market.SetItemQuantity(r.Context(), cartID, productID, req.Quantity)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, line)
}
