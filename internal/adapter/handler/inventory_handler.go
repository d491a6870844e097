package handler

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/core/service"
)

type createInventoryRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

type purchaseRequest struct {
	ProductID         int64 `json:"productId,omitempty"`
	QuantityPurchased int64 `json:"quantityPurchased"`
}

type restockRequest struct {
	Quantity int64 `json:"quantity"`
}

type inventoryResponse struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
	Version   int64 `json:"version"`
}

func (h *HTTPHandler) createInventory(w http.ResponseWriter, r *http.Request) error {
	var req createInventoryRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	inv, err := h.inventoryService.Create(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		return err
	}
	writeInventory(w, http.StatusCreated, inv, true)
	return nil
}

func (h *HTTPHandler) getInventory(w http.ResponseWriter, r *http.Request) error {
	id, err := pathInt(r, "id")
	if err != nil {
		return err
	}

	inv, err := h.inventoryService.GetQuantity(r.Context(), id)
	if err != nil {
		return err
	}
	writeInventory(w, http.StatusOK, inv, false)
	return nil
}

func (h *HTTPHandler) purchase(w http.ResponseWriter, r *http.Request) error {
	id, err := pathInt(r, "id")
	if err != nil {
		return err
	}

	var req purchaseRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.ProductID != 0 && req.ProductID != id {
		return errors.Wrapf(domain.ErrInvalidPayload, "body productId %d does not match path id %d", req.ProductID, id)
	}

	inv, err := h.inventoryService.Purchase(r.Context(), r.Header.Get(headerIdempotencyKey), id, req.QuantityPurchased)
	if err != nil {
		return err
	}
	writeInventory(w, http.StatusOK, inv, false)
	return nil
}

func (h *HTTPHandler) restock(w http.ResponseWriter, r *http.Request) error {
	id, err := pathInt(r, "id")
	if err != nil {
		return err
	}

	var req restockRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	inv, err := h.inventoryService.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		return err
	}
	writeInventory(w, http.StatusOK, inv, false)
	return nil
}

func writeInventory(w http.ResponseWriter, status int, inv domain.Inventory, withLocation bool) {
	location := ""
	if withLocation {
		location = "/inventory/" + service.FormatID(inv.ProductID)
	}
	writeRecord(w, status, inv.Token(), location, inventoryResponse{
		ProductID: inv.ProductID,
		Quantity:  inv.Quantity,
		Version:   inv.Version,
	})
}
